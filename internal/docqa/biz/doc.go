// Package biz 提供文档问答服务的业务逻辑层。
//
// 该包采用分层架构，将业务逻辑拆分为以下组件：
//   - Ingester: 负责文档摄取（文本提取、分块、嵌入、入库）
//   - Retriever: 负责检索（问题嵌入、向量搜索、文档范围过滤）
//   - Generator: 负责生成（上下文构建、LLM 回答生成、流式输出）
//   - Service: 组合以上组件，提供统一的服务接口
package biz
