// File: milvus.go

package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusDB stores chunks in a Milvus collection. The chunk metadata map is
// kept in a varchar column as JSON.
type MilvusDB struct {
	client      client.Client
	config      *Config
	columnNames []string
}

func newMilvusDB(cfg *Config) (*MilvusDB, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("milvus requires an address")
	}
	return &MilvusDB{config: cfg, columnNames: []string{FieldText, FieldMetadata}}, nil
}

func (m *MilvusDB) Connect(ctx context.Context) error {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}
	c, err := client.NewClient(ctx, client.Config{
		Address: m.config.Address,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to milvus at %s: %w", m.config.Address, err)
	}
	m.client = c
	return nil
}

func (m *MilvusDB) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Close()
}

func (m *MilvusDB) HasCollection(ctx context.Context, name string) (bool, error) {
	return m.client.HasCollection(ctx, name)
}

func (m *MilvusDB) DropCollection(ctx context.Context, name string) error {
	return m.client.DropCollection(ctx, name)
}

func (m *MilvusDB) CreateCollection(ctx context.Context, name string, schema Schema) error {
	milvusSchema := entity.NewSchema().WithName(name).WithDescription(schema.Description)
	for _, field := range schema.Fields {
		f := entity.NewField().WithName(field.Name).WithDataType(convertDataType(field.DataType))
		if field.PrimaryKey {
			f.WithIsPrimaryKey(true)
		}
		if field.AutoID {
			f.WithIsAutoID(true)
		}
		if field.DataType == "float_vector" {
			f.WithDim(int64(field.Dimension))
		}
		if field.DataType == "varchar" {
			f.WithMaxLength(int64(field.MaxLength))
		}
		milvusSchema.WithField(f)
	}
	return m.client.CreateCollection(ctx, milvusSchema, entity.DefaultShardNumber)
}

// Insert writes records column by column. Every record must carry the
// ID, Text, Embedding and Metadata fields.
func (m *MilvusDB) Insert(ctx context.Context, collectionName string, data []Record) error {
	if len(data) == 0 {
		return nil
	}
	var (
		ids     = make([]int64, 0, len(data))
		texts   = make([]string, 0, len(data))
		metas   = make([]string, 0, len(data))
		vectors = make([][]float32, 0, len(data))
		dim     int
	)
	for i, record := range data {
		id, ok := record.Fields[FieldID].(int64)
		if !ok {
			return fmt.Errorf("record %d has no int64 %s", i, FieldID)
		}
		text, _ := record.Fields[FieldText].(string)
		vec, ok := record.Fields[FieldEmbedding].(Vector)
		if !ok {
			return fmt.Errorf("record %d has no %s", i, FieldEmbedding)
		}
		if dim == 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return fmt.Errorf("record %d has dimension %d, expected %d", i, len(vec), dim)
		}
		meta, err := json.Marshal(recordMetadata(record))
		if err != nil {
			return fmt.Errorf("failed to encode metadata of record %d: %w", i, err)
		}

		ids = append(ids, id)
		texts = append(texts, text)
		metas = append(metas, string(meta))
		vectors = append(vectors, toFloat32Slice(vec))
	}

	_, err := m.client.Insert(ctx, collectionName, "",
		entity.NewColumnInt64(FieldID, ids),
		entity.NewColumnVarChar(FieldText, texts),
		entity.NewColumnVarChar(FieldMetadata, metas),
		entity.NewColumnFloatVector(FieldEmbedding, dim, vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", collectionName, err)
	}
	GlobalLogger.Debug("Inserted records into milvus", "collection", collectionName, "count", len(data))
	return nil
}

func (m *MilvusDB) Flush(ctx context.Context, collectionName string) error {
	return m.client.Flush(ctx, collectionName, false)
}

// CreateIndex supports HNSW with the M and efConstruction parameters
// (defaults 16 and 256).
func (m *MilvusDB) CreateIndex(ctx context.Context, collectionName, field string, index Index) error {
	var idx entity.Index
	var err error

	switch index.Type {
	case "HNSW":
		mParam := intParam(index.Parameters, "M", 16)
		efc := intParam(index.Parameters, "efConstruction", 256)
		idx, err = entity.NewIndexHNSW(convertMetricType(index.Metric), mParam, efc)
	default:
		return fmt.Errorf("unsupported index type: %s", index.Type)
	}

	if err != nil {
		return err
	}

	return m.client.CreateIndex(ctx, collectionName, field, idx, false)
}

func (m *MilvusDB) LoadCollection(ctx context.Context, name string) error {
	return m.client.LoadCollection(ctx, name, false)
}

func (m *MilvusDB) Count(ctx context.Context, collectionName string) (int, error) {
	stats, err := m.client.GetCollectionStatistics(ctx, collectionName)
	if err != nil {
		return 0, fmt.Errorf("failed to get statistics of %s: %w", collectionName, err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("invalid row count %q: %w", stats["row_count"], err)
	}
	return n, nil
}

func (m *MilvusDB) Search(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}) ([]SearchResult, error) {
	if len(vectors) != 1 {
		return nil, fmt.Errorf("milvus search expects one query vector, got %d", len(vectors))
	}
	var fieldName string
	var vector Vector
	for f, v := range vectors {
		fieldName = f
		vector = v
	}

	sp, err := createSearchParam(searchParams)
	if err != nil {
		return nil, err
	}

	result, err := m.client.Search(ctx, collectionName, nil, "", m.columnNames,
		[]entity.Vector{entity.FloatVector(toFloat32Slice(vector))},
		fieldName, convertMetricType(metricType), topK, sp)
	if err != nil {
		return nil, err
	}

	return m.wrapSearchResults(result), nil
}

// HybridSearch issues one ANN request per vector field and fuses them on the
// server with the given client.Reranker, or RRF when reranker is nil.
func (m *MilvusDB) HybridSearch(ctx context.Context, collectionName string, vectors map[string]Vector, topK int, metricType string, searchParams map[string]interface{}, reranker interface{}) ([]SearchResult, error) {
	subRequests := make([]*client.ANNSearchRequest, 0, len(vectors))

	sp, err := createSearchParam(searchParams)
	if err != nil {
		return nil, err
	}

	for fieldName, vector := range vectors {
		subRequests = append(subRequests, client.NewANNSearchRequest(fieldName, convertMetricType(metricType), "",
			[]entity.Vector{entity.FloatVector(toFloat32Slice(vector))}, sp, topK))
	}

	var milvusReranker client.Reranker
	if reranker == nil {
		milvusReranker = client.NewRRFReranker()
	} else {
		var ok bool
		milvusReranker, ok = reranker.(client.Reranker)
		if !ok {
			return nil, fmt.Errorf("invalid reranker type %T", reranker)
		}
	}

	result, err := m.client.HybridSearch(ctx, collectionName, nil, topK, m.columnNames, milvusReranker, subRequests)
	if err != nil {
		return nil, err
	}

	return m.wrapSearchResults(result), nil
}

func createSearchParam(params map[string]interface{}) (entity.SearchParam, error) {
	switch params["type"] {
	case "HNSW":
		return entity.NewIndexHNSWSearchParam(intParam(params, "ef", 64))
	case nil, "", "FLAT":
		return entity.NewIndexFlatSearchParam()
	default:
		return nil, fmt.Errorf("unsupported search param type: %v", params["type"])
	}
}

func intParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}

func convertMetricType(metricType string) entity.MetricType {
	switch metricType {
	case MetricL2:
		return entity.L2
	case MetricIP:
		return entity.IP
	default:
		return entity.COSINE
	}
}

func convertDataType(dataType string) entity.FieldType {
	switch dataType {
	case "int64":
		return entity.FieldTypeInt64
	case "float_vector":
		return entity.FieldTypeFloatVector
	case "varchar":
		return entity.FieldTypeVarChar
	default:
		return entity.FieldTypeNone
	}
}

func (m *MilvusDB) SetColumnNames(names []string) {
	m.columnNames = names
}

func (m *MilvusDB) wrapSearchResults(result []client.SearchResult) []SearchResult {
	var searchResults []SearchResult
	for _, rs := range result {
		for i := 0; i < rs.ResultCount; i++ {
			id, _ := rs.IDs.GetAsInt64(i)
			fields := make(map[string]interface{})

			for _, fieldName := range m.columnNames {
				column := rs.Fields.GetColumn(fieldName)
				if column == nil {
					continue
				}
				value, err := column.Get(i)
				if err != nil {
					continue
				}
				if fieldName == FieldMetadata {
					value = decodeMetadata(value)
				}
				fields[fieldName] = value
			}

			searchResults = append(searchResults, SearchResult{
				ID:     id,
				Score:  float64(rs.Scores[i]),
				Fields: fields,
			})
		}
	}
	return searchResults
}

func decodeMetadata(value interface{}) interface{} {
	s, ok := value.(string)
	if !ok {
		return value
	}
	md := map[string]string{}
	if err := json.Unmarshal([]byte(s), &md); err != nil {
		return value
	}
	return md
}
