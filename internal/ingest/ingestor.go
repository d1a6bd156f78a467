// Package ingest drives documents through fingerprinting, chunking,
// embedding, and dual-tier storage, then routes the source file to the
// folder matching its outcome.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devkraft/ragline/internal/chunker"
	"github.com/devkraft/ragline/internal/embedding"
	"github.com/devkraft/ragline/internal/fingerprint"
	"github.com/devkraft/ragline/internal/schema"
	"github.com/devkraft/ragline/pkg/logger"
)

// tierStore is the slice of the dual store the ingestor needs. Existence is
// reported per tier: routing a duplicate needs to know which tier already
// holds the content.
type tierStore interface {
	Exists(ctx context.Context, fingerprint string) (inDurable, inFast bool, err error)
	WriteDurable(ctx context.Context, points []schema.StoredPoint) error
	WriteFast(ctx context.Context, points []schema.StoredPoint) error
}

// Dirs names the destination folders for committed documents. Files that
// fail entirely stay where they are.
type Dirs struct {
	Inbox       string
	Stored      string // committed to both tiers
	DurableOnly string // committed to the durable tier only
	FastOnly    string // committed to the fast tier only
}

// Result is one document's disposition. For duplicates it also remembers
// which tier holds the content, which decides the routing folder.
type Result struct {
	Name    string               `json:"name"`
	Outcome schema.IngestOutcome `json:"outcome"`
	Reason  string               `json:"reason,omitempty"`
	Chunks  int                  `json:"chunks,omitempty"`

	dupDurable bool
	dupFast    bool
}

// Ingestor runs the ingestion pipeline. Safe for concurrent use; rate-limit
// waits inside the embedding providers delay only the ingestion that
// incurred them.
type Ingestor struct {
	store    tierStore
	remote   embedding.Provider // durable tier's space
	local    embedding.Provider // fast tier's space
	splitter *chunker.Splitter
	dirs     Dirs
	log      *logger.Logger
}

// NewIngestor wires the pipeline and creates the destination folders.
func NewIngestor(store tierStore, remote, local embedding.Provider, splitter *chunker.Splitter, dirs Dirs, log *logger.Logger) (*Ingestor, error) {
	for _, dir := range []string{dirs.Stored, dirs.DurableOnly, dirs.FastOnly} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &Ingestor{
		store:    store,
		remote:   remote,
		local:    local,
		splitter: splitter,
		dirs:     dirs,
		log:      log,
	}, nil
}

// buildChunks normalizes and splits every page, assigning ordinals that are
// dense and gapless across the whole document regardless of page breaks.
func (in *Ingestor) buildChunks(doc *Document, fp string) []schema.Chunk {
	var chunks []schema.Chunk
	ordinal := 0
	for _, page := range doc.Pages {
		for _, text := range in.splitter.Split(chunker.Normalize(page.Text)) {
			ordinal++
			chunks = append(chunks, schema.Chunk{
				Text: text,
				Meta: schema.ChunkMeta{
					Page:        page.Number,
					Header:      page.Header,
					Ordinal:     ordinal,
					Fingerprint: fp,
					Filename:    doc.Filename,
				},
			})
		}
	}
	return chunks
}

// embedAndWrite runs one tier's attempt: embed every chunk first, then
// write in a single batch. Nothing is written when embedding fails, so a
// cancelled attempt leaves no partial state behind.
func embedAndWrite(ctx context.Context, provider embedding.Provider, write func(context.Context, []schema.StoredPoint) error, chunks []schema.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := provider.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}

	points := make([]schema.StoredPoint, len(chunks))
	for i, c := range chunks {
		points[i] = schema.StoredPoint{Vector: vectors[i], Text: c.Text, Meta: c.Meta}
	}
	return write(ctx, points)
}

// ingest runs the pipeline for one fingerprinted source. The document is
// loaded lazily so duplicates are rejected before any parsing work. Two
// concurrent ingestions of the same new content can both pass the check and
// both write; dedup guards against re-ingestion over time, not against a
// simultaneous race. The two tier attempts are independent failure domains:
// each gets its own embedding and write, and one failing never
// short-circuits the other.
func (in *Ingestor) ingest(ctx context.Context, name, fp string, load func() (*Document, error)) Result {
	res := Result{Name: name}

	inDurable, inFast, err := in.store.Exists(ctx, fp)
	if err != nil {
		res.Outcome = schema.OutcomeFailed
		res.Reason = fmt.Sprintf("existence check failed: %v", err)
		return res
	}
	if inDurable || inFast {
		res.Outcome = schema.OutcomeRejectedDuplicate
		res.dupDurable, res.dupFast = inDurable, inFast
		switch {
		case inDurable && inFast:
			res.Reason = "content already stored in both tiers"
		case inDurable:
			res.Reason = "content already stored in the durable tier"
		default:
			res.Reason = "content already stored in the fast tier"
		}
		return res
	}

	doc, err := load()
	if err != nil {
		res.Outcome = schema.OutcomeFailed
		res.Reason = err.Error()
		return res
	}

	chunks := in.buildChunks(doc, fp)
	if len(chunks) == 0 {
		res.Outcome = schema.OutcomeRejectedEmpty
		res.Reason = "no content after preprocessing"
		return res
	}
	res.Chunks = len(chunks)

	durableErr := embedAndWrite(ctx, in.remote, in.store.WriteDurable, chunks)
	if durableErr != nil {
		in.log.WithError(durableErr).Errorf("durable attempt failed for %s", doc.Filename)
	}
	fastErr := embedAndWrite(ctx, in.local, in.store.WriteFast, chunks)
	if fastErr != nil {
		in.log.WithError(fastErr).Errorf("fast attempt failed for %s", doc.Filename)
	}

	switch {
	case durableErr == nil && fastErr == nil:
		res.Outcome = schema.OutcomeCommittedBoth
	case durableErr == nil:
		res.Outcome = schema.OutcomeCommittedDurableOnly
		res.Reason = fastErr.Error()
	case fastErr == nil:
		res.Outcome = schema.OutcomeCommittedFastOnly
		res.Reason = durableErr.Error()
	default:
		res.Outcome = schema.OutcomeFailed
		res.Reason = fmt.Sprintf("durable: %v; fast: %v", durableErr, fastErr)
	}
	return res
}

// IngestFile runs the pipeline on one file and moves it to the folder
// matching its outcome. Failed files stay in place.
func (in *Ingestor) IngestFile(ctx context.Context, path string) Result {
	name := filepath.Base(path)

	fp, err := fingerprint.SumFile(path)
	if err != nil {
		return Result{Name: name, Outcome: schema.OutcomeFailed, Reason: fmt.Sprintf("fingerprint failed: %v", err)}
	}

	res := in.ingest(ctx, name, fp, func() (*Document, error) { return LoadFile(path) })
	in.route(path, res)
	in.log.WithField("outcome", string(res.Outcome)).Infof("ingested %s (%d chunks)", name, res.Chunks)
	return res
}

// IngestURL runs the pipeline on a fetched web page. There is no file to
// route afterwards.
func (in *Ingestor) IngestURL(ctx context.Context, rawURL string) Result {
	doc, err := FetchURL(ctx, rawURL)
	if err != nil {
		return Result{Name: rawURL, Outcome: schema.OutcomeFailed, Reason: err.Error()}
	}

	fp := fingerprint.SumBytes([]byte(doc.Pages[0].Text))
	res := in.ingest(ctx, rawURL, fp, func() (*Document, error) { return doc, nil })
	in.log.WithField("outcome", string(res.Outcome)).Infof("ingested %s (%d chunks)", rawURL, res.Chunks)
	return res
}

// IngestAll ingests every eligible file in the inbox. Outcomes are
// independent: one failure never aborts the batch, and results preserve
// directory listing order.
func (in *Ingestor) IngestAll(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(in.dirs.Inbox)
	if err != nil {
		return nil, fmt.Errorf("failed to list inbox: %w", err)
	}

	var results []Result
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(in.dirs.Inbox, entry.Name())
		if !Eligible(path) {
			in.log.Infof("skipping ineligible file %s", entry.Name())
			continue
		}
		results = append(results, in.IngestFile(ctx, path))
	}
	return results, nil
}

// route moves a file whose content is stored to the folder recording where
// it lives. Duplicates move too: their content was committed by an earlier
// run, and the folder tells the operator which tier holds it. Empty
// rejections and failures leave the file in the inbox for another attempt.
func (in *Ingestor) route(path string, res Result) {
	var dir string
	switch res.Outcome {
	case schema.OutcomeCommittedBoth:
		dir = in.dirs.Stored
	case schema.OutcomeCommittedDurableOnly:
		dir = in.dirs.DurableOnly
	case schema.OutcomeCommittedFastOnly:
		dir = in.dirs.FastOnly
	case schema.OutcomeRejectedDuplicate:
		switch {
		case res.dupDurable && res.dupFast:
			dir = in.dirs.Stored
		case res.dupDurable:
			dir = in.dirs.DurableOnly
		default:
			dir = in.dirs.FastOnly
		}
	default:
		return
	}
	if dir == "" {
		return
	}
	if err := moveWithoutClobber(path, dir); err != nil {
		in.log.WithError(err).Errorf("failed to move %s to %s", path, dir)
	}
}

// moveWithoutClobber moves the file into dir, suffixing the name with a
// counter when the destination already holds one.
func moveWithoutClobber(path, dir string) error {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	dest := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); os.IsNotExist(err) {
			break
		}
		dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
	return os.Rename(path, dest)
}
