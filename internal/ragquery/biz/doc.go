// Package biz 实现 RAG 查询服务的业务逻辑层。
//
// 该包包含检索器（向量检索与相似度过滤）、提示词构建器、
// 查询引擎（同步与流式）以及查询结果缓存。
package biz
