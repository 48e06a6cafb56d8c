package model

type EmbeddingCache struct {
	Key       string    `json:"key"`
	Embedding []float32 `json:"embedding"`
	Atime     int64     `json:"atime"`
}
