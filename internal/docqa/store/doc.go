// Package store 提供文档问答服务的向量存储层。
//
// 该包定义了向量存储的接口抽象和内存、Milvus 两种实现，
// 支持文档块的存储、按文档范围检索、删除和统计功能。
package store
