// Package store 提供查询服务的向量存储层。
//
// 该包定义了向量存储的接口抽象和 Milvus 实现，
// 支持相似度检索、按文档删除和集合统计。
package store
