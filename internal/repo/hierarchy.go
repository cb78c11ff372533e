package repo

import (
	"context"

	"orgchart/internal/domain"
)

// SubordinateClosure returns every author reachable downward from start within
// maxDepth boss links, using one recursive query. Rows are unordered; the start
// itself is excluded. On cyclic data an author may come back more than once.
func (r Repo) SubordinateClosure(ctx context.Context, start int64, maxDepth int) ([]domain.Subordinate, error) {
	rows, err := r.DB.QueryContext(ctx, `WITH RECURSIVE sub(id, depth) AS (
  SELECT id, 0 FROM authors WHERE id=?
  UNION ALL
  SELECT a.id, s.depth+1 FROM authors a JOIN sub s ON a.boss_id=s.id WHERE s.depth < ?
)
SELECT a.id, a.name, b.id, b.name, s.depth
FROM sub s
JOIN authors a ON a.id=s.id
JOIN authors b ON b.id=a.boss_id
WHERE s.depth > 0`, start, maxDepth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Subordinate
	for rows.Next() {
		var s domain.Subordinate
		if err := rows.Scan(&s.ID, &s.Name, &s.BossID, &s.BossName, &s.Distance); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// AncestorClosure returns the bosses of start, nearest first, following at most
// maxHops links. A result of maxHops rows whose last entry still has a boss
// means the chain did not reach a root.
func (r Repo) AncestorClosure(ctx context.Context, start int64, maxHops int) ([]domain.Author, error) {
	rows, err := r.DB.QueryContext(ctx, `WITH RECURSIVE anc(id, boss_id, depth) AS (
  SELECT id, boss_id, 0 FROM authors WHERE id=?
  UNION ALL
  SELECT a.id, a.boss_id, c.depth+1 FROM authors a JOIN anc c ON a.id=c.boss_id WHERE c.depth < ?
)
SELECT `+authorColumns+`
FROM anc c
JOIN authors a ON a.id=c.id
JOIN accounts acc ON acc.id=a.account_id
WHERE c.depth > 0
ORDER BY c.depth`, start, maxHops)
	if err != nil {
		return nil, err
	}
	return collectAuthors(rows)
}
