package stub

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"options-ledger/internal/domain"
)

// StubExchange serves fixed in-memory transactions page by page, newest
// first, the way the exchange transaction log does.
// Implements ingestion.TransactionSource.
type StubExchange struct {
	mu         sync.Mutex
	items      []domain.RawTransaction
	configured bool
	queries    []domain.Query
	// failAt makes the n-th call (1-based) return err. Zero disables.
	failAt int
	err    error
}

// NewStubExchange creates a stub exchange holding items.
func NewStubExchange(items []domain.RawTransaction) *StubExchange {
	return &StubExchange{
		items:      append([]domain.RawTransaction(nil), items...),
		configured: true,
	}
}

// Add appends items, e.g. to simulate trades arriving between syncs.
func (s *StubExchange) Add(items ...domain.RawTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, items...)
}

// SetConfigured controls the credential check.
func (s *StubExchange) SetConfigured(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = ok
}

// FailOnCall makes the n-th call from now return err.
func (s *StubExchange) FailOnCall(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = len(s.queries) + n
	s.err = err
}

// Configured reports whether credentials are present.
func (s *StubExchange) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

// Queries returns the queries received so far.
func (s *StubExchange) Queries() []domain.Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Query(nil), s.queries...)
}

// FetchTransactions returns one page. The cursor carries the original time
// bounds so cursor-only follow-up queries page the same result set.
func (s *StubExchange) FetchTransactions(_ context.Context, q domain.Query) (*domain.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, q)
	if s.failAt > 0 && len(s.queries) == s.failAt {
		return nil, s.err
	}

	offset := 0
	start, end := q.StartTime, q.EndTime
	if q.Cursor != "" {
		var err error
		offset, start, end, err = decodeCursor(q.Cursor)
		if err != nil {
			return nil, err
		}
	}

	var matched []domain.RawTransaction
	for _, it := range s.items {
		if q.Category != "" && it.Category != q.Category {
			continue
		}
		ts, _ := strconv.ParseInt(it.TransactionTime, 10, 64)
		if start != nil && ts < *start {
			continue
		}
		if end != nil && ts > *end {
			continue
		}
		matched = append(matched, it)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		ti, _ := strconv.ParseInt(matched[i].TransactionTime, 10, 64)
		tj, _ := strconv.ParseInt(matched[j].TransactionTime, 10, 64)
		return ti > tj
	})

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	stop := offset + limit
	if stop > len(matched) {
		stop = len(matched)
	}

	page := &domain.Page{Items: append([]domain.RawTransaction(nil), matched[offset:stop]...)}
	if stop < len(matched) {
		page.NextCursor = encodeCursor(stop, start, end)
	}
	return page, nil
}

func encodeCursor(offset int, start, end *int64) string {
	return fmt.Sprintf("%d:%s:%s", offset, boundString(start), boundString(end))
}

func decodeCursor(c string) (int, *int64, *int64, error) {
	parts := strings.Split(c, ":")
	if len(parts) != 3 {
		return 0, nil, nil, fmt.Errorf("invalid cursor %q", c)
	}
	offset, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("invalid cursor %q", c)
	}
	return offset, parseBound(parts[1]), parseBound(parts[2]), nil
}

func boundString(b *int64) string {
	if b == nil {
		return ""
	}
	return strconv.FormatInt(*b, 10)
}

func parseBound(s string) *int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}
