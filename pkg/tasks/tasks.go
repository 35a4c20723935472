// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentProcessingTask represents a document ingestion job: the uploaded
// object waits in MinIO until a worker extracts, chunks and indexes it.
type DocumentProcessingTask struct {
	DocumentID string `json:"document_id"`
	ObjectName string `json:"object_name"`
	Filename   string `json:"filename"`
	UploadedBy string `json:"uploaded_by"`
}
