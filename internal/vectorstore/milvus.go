package vectorstore

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/devkraft/ragline/internal/schema"
	"github.com/devkraft/ragline/pkg/logger"
)

// Collection schema fields shared by every tier.
const (
	fieldID          = "id"
	fieldEmbedding   = "embedding"
	fieldText        = "text"
	fieldFingerprint = "fingerprint"
	fieldFilename    = "filename"
	fieldHeader      = "header"
	fieldPage        = "page"
	fieldOrdinal     = "ordinal"
)

// MilvusBackend implements Backend on top of a Milvus instance.
type MilvusBackend struct {
	client client.Client
	log    *logger.Logger
}

// NewMilvusBackend connects to the Milvus instance at address. apiKey may be
// empty for unauthenticated deployments.
func NewMilvusBackend(ctx context.Context, address, apiKey string, log *logger.Logger) (*MilvusBackend, error) {
	cfg := client.Config{Address: address}
	if apiKey != "" {
		cfg.APIKey = apiKey
	}
	c, err := client.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus at %s: %w", address, err)
	}
	return &MilvusBackend{client: c, log: log}, nil
}

// Close releases the underlying connection.
func (b *MilvusBackend) Close() error {
	return b.client.Close()
}

// EnsureCollection creates the collection with the store schema and a cosine
// AUTOINDEX when it does not exist, then loads it for serving. A failure to
// build a scalar index is logged and tolerated: lookups still work, only
// slower.
func (b *MilvusBackend) EnsureCollection(ctx context.Context, name string, dim int) error {
	exists, err := b.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}

	if !exists {
		sch := entity.NewSchema().
			WithName(name).
			WithDescription("document chunks with content fingerprints").
			WithField(entity.NewField().WithName(fieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(fieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(dim))).
			WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(fieldFingerprint).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldFilename).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(fieldHeader).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(fieldPage).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldOrdinal).WithDataType(entity.FieldTypeInt64))

		if err := b.client.CreateCollection(ctx, sch, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}

		idx, err := entity.NewIndexAUTOINDEX(entity.COSINE)
		if err != nil {
			return fmt.Errorf("failed to build vector index: %w", err)
		}
		if err := b.client.CreateIndex(ctx, name, fieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create vector index on %s: %w", name, err)
		}
		b.log.Infof("created collection %s (dim=%d)", name, dim)
	}

	// Ensured on every startup, not just at creation, so a scalar index
	// that failed once is retried the next time the collection comes up.
	if err := b.client.CreateIndex(ctx, name, fieldFingerprint, entity.NewScalarIndex(), false); err != nil {
		b.log.WithError(err).Warnf("fingerprint index on %s unavailable, lookups will scan", name)
	}
	if err := b.client.CreateIndex(ctx, name, fieldOrdinal, entity.NewScalarIndex(), false); err != nil {
		b.log.WithError(err).Warnf("ordinal index on %s unavailable", name)
	}

	if err := b.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}
	return nil
}

// HasFingerprint checks for any point carrying the fingerprint.
func (b *MilvusBackend) HasFingerprint(ctx context.Context, collection, fingerprint string) (bool, error) {
	expr := fmt.Sprintf("%s == %q", fieldFingerprint, fingerprint)
	rs, err := b.client.Query(ctx, collection, nil, expr, []string{fieldID}, client.WithLimit(1))
	if err != nil {
		return false, fmt.Errorf("fingerprint lookup in %s failed: %w", collection, err)
	}
	for _, col := range rs {
		if col.Name() == fieldID {
			return col.Len() > 0, nil
		}
	}
	return false, nil
}

// Insert writes points column-wise.
func (b *MilvusBackend) Insert(ctx context.Context, collection string, points []schema.StoredPoint) error {
	if len(points) == 0 {
		return nil
	}

	ids := make([]string, len(points))
	vectors := make([][]float32, len(points))
	texts := make([]string, len(points))
	fingerprints := make([]string, len(points))
	filenames := make([]string, len(points))
	headers := make([]string, len(points))
	pages := make([]int64, len(points))
	ordinals := make([]int64, len(points))
	for i, p := range points {
		ids[i] = p.ID
		vectors[i] = p.Vector
		texts[i] = p.Text
		fingerprints[i] = p.Meta.Fingerprint
		filenames[i] = p.Meta.Filename
		headers[i] = p.Meta.Header
		pages[i] = int64(p.Meta.Page)
		ordinals[i] = int64(p.Meta.Ordinal)
	}

	_, err := b.client.Insert(ctx, collection, "",
		entity.NewColumnVarChar(fieldID, ids),
		entity.NewColumnFloatVector(fieldEmbedding, len(vectors[0]), vectors),
		entity.NewColumnVarChar(fieldText, texts),
		entity.NewColumnVarChar(fieldFingerprint, fingerprints),
		entity.NewColumnVarChar(fieldFilename, filenames),
		entity.NewColumnVarChar(fieldHeader, headers),
		entity.NewColumnInt64(fieldPage, pages),
		entity.NewColumnInt64(fieldOrdinal, ordinals),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %d points into %s: %w", len(points), collection, err)
	}
	return nil
}

// Search runs a cosine similarity search and hydrates hits with their
// stored text and metadata.
func (b *MilvusBackend) Search(ctx context.Context, collection string, vector []float32, topK int) ([]schema.RetrievalHit, error) {
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	outputFields := []string{fieldID, fieldText, fieldFingerprint, fieldFilename, fieldHeader, fieldPage, fieldOrdinal}
	results, err := b.client.Search(
		ctx, collection, nil, "", outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		fieldEmbedding, entity.COSINE, topK, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("search in %s failed: %w", collection, err)
	}

	var hits []schema.RetrievalHit
	for _, res := range results {
		ids := varCharData(res.Fields, fieldID)
		texts := varCharData(res.Fields, fieldText)
		fingerprints := varCharData(res.Fields, fieldFingerprint)
		filenames := varCharData(res.Fields, fieldFilename)
		headers := varCharData(res.Fields, fieldHeader)
		pages := int64Data(res.Fields, fieldPage)
		ordinals := int64Data(res.Fields, fieldOrdinal)

		for i := 0; i < res.ResultCount; i++ {
			hit := schema.RetrievalHit{Score: res.Scores[i]}
			if i < len(ids) {
				hit.ID = ids[i]
			}
			if i < len(texts) {
				hit.Text = texts[i]
			}
			if i < len(fingerprints) {
				hit.Meta.Fingerprint = fingerprints[i]
			}
			if i < len(filenames) {
				hit.Meta.Filename = filenames[i]
			}
			if i < len(headers) {
				hit.Meta.Header = headers[i]
			}
			if i < len(pages) {
				hit.Meta.Page = int(pages[i])
			}
			if i < len(ordinals) {
				hit.Meta.Ordinal = int(ordinals[i])
			}
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func varCharData(fields []entity.Column, name string) []string {
	for _, col := range fields {
		if col.Name() == name {
			if vc, ok := col.(*entity.ColumnVarChar); ok {
				return vc.Data()
			}
		}
	}
	return nil
}

func int64Data(fields []entity.Column, name string) []int64 {
	for _, col := range fields {
		if col.Name() == name {
			if ic, ok := col.(*entity.ColumnInt64); ok {
				return ic.Data()
			}
		}
	}
	return nil
}

var _ Backend = (*MilvusBackend)(nil)
