package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"layoutaria/internal/layout/cache"
	"layoutaria/internal/layout/domain"
	"layoutaria/internal/platform/apperr"
	"layoutaria/internal/platform/pagination"
	"layoutaria/internal/platform/sanitize"
	userdomain "layoutaria/internal/user/domain"
)

// Sort orders for ListPublic.
const (
	SortRecent  = "recent"
	SortPopular = "popular"
)

const (
	defaultPublicLimit = 10
	defaultMineLimit   = 20
	defaultTagsLimit   = 20
	maxPageLimit       = 50
	maxTagsLimit       = 100
	maxSearchLength    = 120
)

// PageQuery selects one page of a listing.
type PageQuery = pagination.Query

// Pagination describes the page returned.
type Pagination = pagination.Page

// PublicQuery filters and orders the public listing.
type PublicQuery struct {
	PageQuery
	Search string
	Tag    string
	Sort   string
}

// LayoutPage is one page of layouts.
type LayoutPage struct {
	Items      []domain.View `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

func (p *LayoutPage) clone() *LayoutPage {
	c := &LayoutPage{Items: make([]domain.View, len(p.Items)), Pagination: p.Pagination}
	for i, v := range p.Items {
		c.Items[i] = v.Clone()
	}
	return c
}

// RevisionPage is one page of revisions, newest version first.
type RevisionPage struct {
	Items      []*domain.Revision `json:"items"`
	Pagination Pagination         `json:"pagination"`
}

// TagCount is the number of public layouts carrying Tag.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// TagList is the result of ListPublicTags.
type TagList struct {
	Items           []TagCount `json:"items"`
	TotalUniqueTags int        `json:"totalUniqueTags"`
}

func (t *TagList) clone() *TagList {
	return &TagList{Items: slices.Clone(t.Items), TotalUniqueTags: t.TotalUniqueTags}
}

func byRecent(a, b *domain.Layout) int {
	return b.UpdatedAt.Compare(a.UpdatedAt)
}

func byPopular(a, b *domain.Layout) int {
	if c := cmp.Compare(b.Stars, a.Stars); c != 0 {
		return c
	}
	return byRecent(a, b)
}

// ListPublic lists public layouts matching the query. Results are cached.
func (s *Service) ListPublic(ctx context.Context, q PublicQuery) (*LayoutPage, error) {
	page, err := pagination.Normalize(q.PageQuery, defaultPublicLimit, maxPageLimit)
	if err != nil {
		return nil, err
	}
	sortBy := SortRecent
	if q.Sort == SortPopular {
		sortBy = SortPopular
	}
	search := strings.ToLower(sanitize.Text(q.Search, maxSearchLength))
	tag := strings.ToLower(sanitize.Text(q.Tag, sanitize.MaxTagLength))
	key := fmt.Sprintf("public-list:%d:%d:%s:%q:%q", page.Page, page.Limit, sortBy, search, tag)

	return cache.GetOrLoad(s.cache, "list", key, func() (*LayoutPage, error) {
		doc := s.store.Read(ctx)
		var matched []*domain.Layout
		for _, l := range doc.Layouts {
			if !l.IsPublic {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(l.Name), search) &&
				!strings.Contains(strings.ToLower(l.Description), search) {
				continue
			}
			if tag != "" && !slices.Contains(l.Tags, tag) {
				continue
			}
			matched = append(matched, l)
		}
		if sortBy == SortPopular {
			slices.SortStableFunc(matched, byPopular)
		} else {
			slices.SortStableFunc(matched, byRecent)
		}
		return viewPage(matched, page), nil
	}, (*LayoutPage).clone)
}

// ListPublicTags counts tags across public layouts, most used first. Results are cached.
func (s *Service) ListPublicTags(ctx context.Context, limit int) (*TagList, error) {
	if limit == 0 {
		limit = defaultTagsLimit
	}
	if limit < 1 || limit > maxTagsLimit {
		return nil, apperr.Validationf("limit must be between 1 and %d", maxTagsLimit)
	}
	key := fmt.Sprintf("public-tags:%d", limit)

	return cache.GetOrLoad(s.cache, "tags", key, func() (*TagList, error) {
		counts := map[string]int{}
		for _, l := range s.store.Read(ctx).Layouts {
			if !l.IsPublic {
				continue
			}
			for _, raw := range l.Tags {
				if t := strings.ToLower(sanitize.Text(raw, sanitize.MaxTagLength)); t != "" {
					counts[t]++
				}
			}
		}
		items := make([]TagCount, 0, len(counts))
		for t, n := range counts {
			items = append(items, TagCount{Tag: t, Count: n})
		}
		slices.SortFunc(items, func(a, b TagCount) int {
			if c := cmp.Compare(b.Count, a.Count); c != 0 {
				return c
			}
			return strings.Compare(a.Tag, b.Tag)
		})
		if len(items) > limit {
			items = items[:limit]
		}
		return &TagList{Items: items, TotalUniqueTags: len(counts)}, nil
	}, (*TagList).clone)
}

// ListMine lists the actor's own layouts, most recently updated first.
func (s *Service) ListMine(ctx context.Context, actor userdomain.Actor, q PageQuery) (*LayoutPage, error) {
	if actor.Anonymous() {
		return nil, errAuthRequired
	}
	page, err := pagination.Normalize(q, defaultMineLimit, maxPageLimit)
	if err != nil {
		return nil, err
	}
	var mine []*domain.Layout
	for _, l := range s.store.Read(ctx).Layouts {
		if l.OwnerID == actor.ID {
			mine = append(mine, l)
		}
	}
	slices.SortStableFunc(mine, byRecent)
	return viewPage(mine, page), nil
}

// Get returns one layout the actor may read. actor may be anonymous.
func (s *Service) Get(ctx context.Context, actor userdomain.Actor, id string) (domain.View, error) {
	l, err := s.readableSnapshot(ctx, actor, id)
	if err != nil {
		return domain.View{}, err
	}
	return l.View(), nil
}

// ListRevisions lists a readable layout's revisions, newest version first.
func (s *Service) ListRevisions(ctx context.Context, actor userdomain.Actor, id string, q PageQuery) (*RevisionPage, error) {
	page, err := pagination.Normalize(q, defaultPublicLimit, maxPageLimit)
	if err != nil {
		return nil, err
	}
	doc := s.store.Read(ctx)
	l := doc.LayoutByID(id)
	if l == nil {
		return nil, errLayoutNotFound
	}
	if err := s.assertCanRead(ctx, actor, l); err != nil {
		return nil, err
	}
	var revs []*domain.Revision
	for _, r := range doc.LayoutRevisions {
		if r.LayoutID == id {
			revs = append(revs, r)
		}
	}
	slices.SortStableFunc(revs, func(a, b *domain.Revision) int {
		if c := cmp.Compare(b.Version, a.Version); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	items, p := pagination.Slice(revs, page)
	return &RevisionPage{Items: items, Pagination: p}, nil
}

// GetRevision returns one revision of a readable layout.
func (s *Service) GetRevision(ctx context.Context, actor userdomain.Actor, id, revisionID string) (*domain.Revision, error) {
	doc := s.store.Read(ctx)
	l := doc.LayoutByID(id)
	if l == nil {
		return nil, errLayoutNotFound
	}
	if err := s.assertCanRead(ctx, actor, l); err != nil {
		return nil, err
	}
	r := doc.RevisionByID(id, revisionID)
	if r == nil {
		return nil, errRevisionNotFound
	}
	return r, nil
}

func (s *Service) readableSnapshot(ctx context.Context, actor userdomain.Actor, id string) (*domain.Layout, error) {
	l := s.store.Read(ctx).LayoutByID(id)
	if l == nil {
		return nil, errLayoutNotFound
	}
	if err := s.assertCanRead(ctx, actor, l); err != nil {
		return nil, err
	}
	return l, nil
}

func viewPage(layouts []*domain.Layout, q PageQuery) *LayoutPage {
	paged, p := pagination.Slice(layouts, q)
	items := make([]domain.View, len(paged))
	for i, l := range paged {
		items[i] = l.View()
	}
	return &LayoutPage{Items: items, Pagination: p}
}
