// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chatbot-rag-go/internal/config"
	"chatbot-rag-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端，并确保记忆与文档分块两个索引存在。
func InitES(esCfg config.ElasticsearchConfig, dims int) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client

	if err := createIndexIfNotExists(esCfg.MemoryIndex, memoryMapping(dims)); err != nil {
		return err
	}
	return createIndexIfNotExists(esCfg.ChunkIndex, chunkMapping(dims))
}

// memoryMapping 记忆索引：向量 + 过滤用的 keyword 字段。
func memoryMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"memory_id": { "type": "keyword" },
				"message_id": { "type": "keyword" },
				"conversation_id": { "type": "keyword" },
				"user_id": { "type": "keyword" },
				"content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, dims)
}

// chunkMapping 文档分块索引：向量 + is_active 过滤字段。
func chunkMapping(dims int) string {
	return fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"chunk_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"chunk_index": { "type": "keyword" },
				"content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" },
				"is_active": { "type": "boolean" }
			}
		}
	}`, dims)
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则按给定 mapping 创建。
func createIndexIfNotExists(indexName, mapping string) error {
	res, err := ESClient.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引 '%s' 时收到意外的状态码: %d", indexName, res.StatusCode)
	}

	res, err = ESClient.Indices.Create(
		indexName,
		ESClient.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// IndexDocument 将单个文档写入指定索引，文档 ID 由调用方指定。
func IndexDocument(ctx context.Context, indexName, docID string, doc interface{}) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: docID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, ESClient)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引文档到 '%s' 出错: %s", indexName, res.String())
		return errors.New("failed to index document")
	}
	return nil
}

// KnnSearch 在指定索引上执行 k 近邻检索，filters 为 knn 子句内的 term 过滤条件。
// 返回每个命中的 _source 原始 JSON，由调用方自行解码。
func KnnSearch(ctx context.Context, indexName string, vector []float32, k int, filters []map[string]interface{}) ([]json.RawMessage, error) {
	knn := map[string]interface{}{
		"field":          "vector",
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	if len(filters) > 0 {
		knn["filter"] = map[string]interface{}{
			"bool": map[string]interface{}{
				"must": filters,
			},
		}
	}

	esQuery := map[string]interface{}{
		"knn":  knn,
		"size": k,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := ESClient.Search(
		ESClient.Search.WithContext(ctx),
		ESClient.Search.WithIndex(indexName),
		ESClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source json.RawMessage `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	sources := make([]json.RawMessage, 0, len(esResponse.Hits.Hits))
	for _, hit := range esResponse.Hits.Hits {
		sources = append(sources, hit.Source)
	}
	return sources, nil
}

// UpdateByQuery 对匹配 term 条件的文档执行脚本更新，用于批量翻转 is_active 等标记位。
func UpdateByQuery(ctx context.Context, indexName, termField string, termValue interface{}, script string, params map[string]interface{}) error {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{termField: termValue},
		},
		"script": map[string]interface{}{
			"source": script,
			"params": params,
			"lang":   "painless",
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("failed to encode update_by_query body: %w", err)
	}

	res, err := ESClient.UpdateByQuery(
		[]string{indexName},
		ESClient.UpdateByQuery.WithContext(ctx),
		ESClient.UpdateByQuery.WithBody(&buf),
		ESClient.UpdateByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch update_by_query failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch update_by_query returned an error: %s", res.String())
	}
	return nil
}

// DeleteByQuery 删除匹配 term 条件的所有文档。
func DeleteByQuery(ctx context.Context, indexName, termField string, termValue interface{}) error {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"term": map[string]interface{}{termField: termValue},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("failed to encode delete_by_query body: %w", err)
	}

	res, err := ESClient.DeleteByQuery(
		[]string{indexName},
		&buf,
		ESClient.DeleteByQuery.WithContext(ctx),
		ESClient.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete_by_query failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch delete_by_query returned an error: %s", res.String())
	}
	return nil
}
