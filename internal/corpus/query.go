// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/pdiddy/grant-engine/pkg/types"
)

var tokenRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)

// excerptRunes caps the excerpt carried on an exemplar.
const excerptRunes = 400

// GetGrant returns one grant record by ID.
func (s *Store) GetGrant(ctx context.Context, grantID string) (*types.GrantRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, pi, institution, project_number, ic, fiscal_year,
			impact_score, sha256, source_pdf, markdown_path, conversion_status
		 FROM grants WHERE id = ?`, grantID)

	record, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("grant %s not found", grantID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying grant: %w", err)
	}
	return record, nil
}

// GetAims returns one grant's aims section.
func (s *Store) GetAims(ctx context.Context, grantID string) (*types.AimsSection, error) {
	var sec types.AimsSection
	var review string
	err := s.db.QueryRowContext(ctx,
		`SELECT grant_id, heading, text, raw_md, review FROM aims WHERE grant_id = ?`, grantID,
	).Scan(&sec.GrantID, &sec.Heading, &sec.Text, &sec.RawMarkdown, &review)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("aims for grant %s not found", grantID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying aims: %w", err)
	}
	sec.Review = types.ReviewStatus(review)
	return &sec, nil
}

// ListGrants returns all grant records ordered by ID.
func (s *Store) ListGrants(ctx context.Context) ([]types.GrantRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, pi, institution, project_number, ic, fiscal_year,
			impact_score, sha256, source_pdf, markdown_path, conversion_status
		 FROM grants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying grants: %w", err)
	}
	defer rows.Close()

	var records []types.GrantRecord
	for rows.Next() {
		record, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning grant: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// ListChunks returns every chunk in the corpus ordered by grant and
// sequence, for embedding runs.
func (s *Store) ListChunks(ctx context.Context) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, grant_id, seq, text FROM chunks ORDER BY grant_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var ch types.Chunk
		if err := rows.Scan(&ch.ID, &ch.GrantID, &ch.Seq, &ch.Text); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

// ChunkByID returns one chunk.
func (s *Store) ChunkByID(ctx context.Context, chunkID string) (*types.Chunk, error) {
	var ch types.Chunk
	err := s.db.QueryRowContext(ctx,
		`SELECT id, grant_id, seq, text FROM chunks WHERE id = ?`, chunkID,
	).Scan(&ch.ID, &ch.GrantID, &ch.Seq, &ch.Text)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %s not found", chunkID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying chunk: %w", err)
	}
	return &ch, nil
}

// CountGrants returns the number of grants in the corpus.
func (s *Store) CountGrants(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM grants`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting grants: %w", err)
	}
	return n, nil
}

// ExemplarsByChunkIDs resolves chunk IDs to exemplars with grant metadata
// attached. Unknown IDs are silently dropped. Similarity is left zero for
// the caller to fill.
func (s *Store) ExemplarsByChunkIDs(ctx context.Context, chunkIDs []string) (map[string]types.Exemplar, error) {
	out := make(map[string]types.Exemplar, len(chunkIDs))
	if len(chunkIDs) == 0 {
		return out, nil
	}

	placeholders := strings.Repeat("?,", len(chunkIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(chunkIDs))
	for i, id := range chunkIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT c.id, c.grant_id, c.text, g.title, g.impact_score, a.review
		 FROM chunks c
		 JOIN grants g ON g.id = c.grant_id
		 JOIN aims a ON a.grant_id = c.grant_id
		 WHERE c.id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("querying exemplars: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ex types.Exemplar
		var text string
		var title sql.NullString
		var score sql.NullFloat64
		var review sql.NullString
		if err := rows.Scan(&ex.ChunkID, &ex.GrantID, &text, &title, &score, &review); err != nil {
			return nil, fmt.Errorf("scanning exemplar: %w", err)
		}
		ex.Title = title.String
		if score.Valid {
			v := score.Float64
			ex.ImpactScore = &v
		}
		ex.Review = types.ReviewStatus(review.String)
		ex.Excerpt = truncateRunes(text, excerptRunes)
		out[ex.ChunkID] = ex
	}
	return out, rows.Err()
}

// LexicalSearch ranks chunks by token overlap with the query, using the
// full-text index to shortlist candidates. It backs retrieval when no
// vector index is available and scores in [0, 1] like cosine similarity.
func (s *Store) LexicalSearch(ctx context.Context, query string, maxResults int) ([]types.Exemplar, error) {
	if maxResults <= 0 {
		maxResults = s.maxResults
	}

	queryTokens := tokenSet(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	match := anyTermQuery(queryTokens)
	shortlist := maxResults * 4
	if shortlist < 50 {
		shortlist = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.grant_id, c.text, g.title, g.impact_score, a.review
		 FROM chunks_fts f
		 JOIN chunks c ON c.rowid = f.rowid
		 JOIN grants g ON g.id = c.grant_id
		 JOIN aims a ON a.grant_id = c.grant_id
		 WHERE chunks_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`, match, shortlist)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	defer rows.Close()

	var results []types.Exemplar
	for rows.Next() {
		var ex types.Exemplar
		var text string
		var title sql.NullString
		var score sql.NullFloat64
		var review sql.NullString
		if err := rows.Scan(&ex.ChunkID, &ex.GrantID, &text, &title, &score, &review); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		ex.Title = title.String
		if score.Valid {
			v := score.Float64
			ex.ImpactScore = &v
		}
		ex.Review = types.ReviewStatus(review.String)
		ex.Excerpt = truncateRunes(text, excerptRunes)
		ex.Similarity = overlapScore(queryTokens, tokenSet(text))
		results = append(results, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// KeywordChunkIDs runs a raw FTS5 match and returns chunk IDs by rank.
// The query uses FTS5 syntax, so phrases and boolean operators work.
func (s *Store) KeywordChunkIDs(ctx context.Context, ftsQuery string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = s.maxResults
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id FROM chunks_fts f
		 JOIN chunks c ON c.rowid = f.rowid
		 WHERE chunks_fts MATCH ?
		 ORDER BY rank LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning chunk ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// scanGrant reads one grants row from a row scanner.
func scanGrant(row interface{ Scan(...any) error }) (*types.GrantRecord, error) {
	var record types.GrantRecord
	var title, pi, institution, projectNumber, ic sql.NullString
	var fiscalYear sql.NullInt64
	var impactScore sql.NullFloat64
	var sha, sourcePDF, markdownPath, convStatus sql.NullString

	err := row.Scan(&record.ID, &title, &pi, &institution, &projectNumber, &ic,
		&fiscalYear, &impactScore, &sha, &sourcePDF, &markdownPath, &convStatus)
	if err != nil {
		return nil, err
	}

	record.Title = title.String
	record.PI = pi.String
	record.Institution = institution.String
	record.ProjectNumber = projectNumber.String
	record.IC = ic.String
	record.FiscalYear = int(fiscalYear.Int64)
	if impactScore.Valid {
		v := impactScore.Float64
		record.ImpactScore = &v
	}
	record.SHA256 = sha.String
	record.SourcePDF = sourcePDF.String
	record.MarkdownPath = markdownPath.String
	record.ConversionStatus = types.ConversionStatus(convStatus.String)
	return &record, nil
}

// tokenSet lowercases and deduplicates the words of a text.
func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range tokenRe.FindAllString(strings.ToLower(text), -1) {
		set[tok] = struct{}{}
	}
	return set
}

// overlapScore is the Ochiai coefficient of two token sets.
func overlapScore(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(a))*float64(len(b)))
}

// anyTermQuery builds an FTS5 query matching any of the tokens.
func anyTermQuery(tokens map[string]struct{}) string {
	terms := make([]string, 0, len(tokens))
	for tok := range tokens {
		terms = append(terms, `"`+tok+`"`)
	}
	sort.Strings(terms)
	return strings.Join(terms, " OR ")
}

// truncateRunes shortens text to at most n runes, appending an ellipsis
// when cut.
func truncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
