// Package registry 提供文档元信息的持久化登记。
//
// 登记表以 JSON 文件形式落盘，进程重启后可恢复。所有写操作
// 先写临时文件再原子改名，避免写入中断产生损坏文件。
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/docqa/internal/model"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// Registry 文档登记表。
type Registry struct {
	mu   sync.Mutex
	path string
	docs map[string]*model.Document
}

// New 创建登记表并从磁盘加载已有记录。
func New(path string) (*Registry, error) {
	r := &Registry{
		path: path,
		docs: make(map[string]*model.Document),
	}

	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load 从磁盘加载登记文件，文件不存在时视为空表。
func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("读取登记文件失败: %w", err)
	}

	var docs []*model.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		// 损坏的登记文件不应阻止服务启动
		logger.Warnw("登记文件损坏，按空表处理", "path", r.path, "error", err)
		return nil
	}

	for _, doc := range docs {
		r.docs[doc.ID] = doc
	}
	return nil
}

// flush 将登记表写入磁盘。调用方必须持有锁。
func (r *Registry) flush() error {
	docs := r.snapshot()

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化登记表失败: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("创建登记目录失败: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("写入登记文件失败: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("替换登记文件失败: %w", err)
	}
	return nil
}

// snapshot 返回按上传时间排序的文档列表。调用方必须持有锁。
func (r *Registry) snapshot() []*model.Document {
	docs := make([]*model.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UploadDate.Equal(docs[j].UploadDate) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UploadDate.Before(docs[j].UploadDate)
	})
	return docs
}

// Add 登记新文档并落盘。
func (r *Registry) Add(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *doc
	r.docs[doc.ID] = &copied
	return r.flush()
}

// Update 更新已登记文档并落盘。文档不存在时返回错误。
func (r *Registry) Update(doc *model.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[doc.ID]; !ok {
		return fmt.Errorf("文档未登记: %s", doc.ID)
	}

	copied := *doc
	r.docs[doc.ID] = &copied
	return r.flush()
}

// Get 按 ID 查询文档，未找到返回 nil。
func (r *Registry) Get(id string) *model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[id]
	if !ok {
		return nil
	}
	copied := *doc
	return &copied
}

// List 返回全部文档，按上传时间升序。
func (r *Registry) List() []*model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := r.snapshot()
	result := make([]*model.Document, len(docs))
	for i, doc := range docs {
		copied := *doc
		result[i] = &copied
	}
	return result
}

// FindByNameAndSize 按文件名和大小查找已登记的文档，用于上传去重。
func (r *Registry) FindByNameAndSize(filename string, size int64) *model.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, doc := range r.docs {
		if doc.Filename == filename && doc.Size == size {
			copied := *doc
			return &copied
		}
	}
	return nil
}

// Delete 删除登记记录并落盘。文档不存在时为幂等空操作。
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.docs[id]; !ok {
		return nil
	}

	delete(r.docs, id)
	return r.flush()
}

// Count 返回已登记文档数量。
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}
