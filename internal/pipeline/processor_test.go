package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"gqx-gateway-go/internal/config"
	"gqx-gateway-go/internal/model"
	"gqx-gateway-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) CreateEmbedding(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text))}, nil
}

type recordingStore struct {
	indexNames []string
	docs       []model.EsDocument
	err        error
}

func (s *recordingStore) Upsert(_ context.Context, indexName string, doc model.EsDocument) error {
	if s.err != nil {
		return s.err
	}
	s.indexNames = append(s.indexNames, indexName)
	s.docs = append(s.docs, doc)
	return nil
}

func TestProcessUpsertsTriplesInSubmissionOrder(t *testing.T) {
	store := &recordingStore{}
	p := NewProcessor(&fakeEmbedder{}, store, config.ElasticsearchConfig{IndexName: "test_docs"})

	task := tasks.IndexTask{
		Texts:    []string{"first text", "second text", "third text"},
		IDs:      []string{"doc_a", "doc_b", "doc_c"},
		TenantID: "tenant-a",
	}
	require.NoError(t, p.Process(context.Background(), task))

	require.Len(t, store.docs, 3)
	for i, doc := range store.docs {
		// 入库的 (text, id, tenant) 三元组与提交顺序一致
		assert.Equal(t, task.IDs[i], doc.VectorID, "doc %d", i)
		assert.Equal(t, task.Texts[i], doc.TextContent, "doc %d", i)
		assert.Equal(t, "tenant-a", doc.TenantID, "doc %d", i)
		assert.NotEmpty(t, doc.Vector, "doc %d", i)
		assert.Equal(t, "test_docs", store.indexNames[i])
	}
}

func TestProcessQueueDrainRoundTrip(t *testing.T) {
	// 入队多个任务后按序处理，等价于 worker 逐条排空队列
	store := &recordingStore{}
	p := NewProcessor(&fakeEmbedder{}, store, config.ElasticsearchConfig{IndexName: "test_docs"})

	var queued []tasks.IndexTask
	for i := 0; i < 3; i++ {
		queued = append(queued, tasks.IndexTask{
			Texts:    []string{fmt.Sprintf("text %d", i)},
			IDs:      []string{fmt.Sprintf("doc_%d", i)},
			TenantID: "tenant-a",
		})
	}

	for _, task := range queued {
		require.NoError(t, p.Process(context.Background(), task))
	}

	require.Len(t, store.docs, 3)
	for i, doc := range store.docs {
		assert.Equal(t, fmt.Sprintf("doc_%d", i), doc.VectorID)
		assert.Equal(t, fmt.Sprintf("text %d", i), doc.TextContent)
	}
}

func TestProcessRejectsLengthMismatch(t *testing.T) {
	embedder := &fakeEmbedder{}
	p := NewProcessor(embedder, &recordingStore{}, config.ElasticsearchConfig{IndexName: "test"})

	err := p.Process(context.Background(), tasks.IndexTask{
		Texts:    []string{"a", "b"},
		IDs:      []string{"only-one"},
		TenantID: "tenant-a",
	})

	assert.Error(t, err)
	// 校验失败不应进入向量化
	assert.Zero(t, embedder.calls)
}

func TestProcessStopsOnEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("model offline")}
	store := &recordingStore{}
	p := NewProcessor(embedder, store, config.ElasticsearchConfig{IndexName: "test"})

	err := p.Process(context.Background(), tasks.IndexTask{
		Texts:    []string{"a"},
		IDs:      []string{"doc_0"},
		TenantID: "tenant-a",
	})

	assert.Error(t, err)
	assert.Equal(t, 1, embedder.calls)
	assert.Empty(t, store.docs)
}

func TestProcessStopsOnUpsertFailure(t *testing.T) {
	store := &recordingStore{err: errors.New("es down")}
	p := NewProcessor(&fakeEmbedder{}, store, config.ElasticsearchConfig{IndexName: "test"})

	err := p.Process(context.Background(), tasks.IndexTask{
		Texts:    []string{"a", "b"},
		IDs:      []string{"doc_0", "doc_1"},
		TenantID: "tenant-a",
	})

	assert.Error(t, err)
}
