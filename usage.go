package xlpivot

import (
	"strconv"
	"strings"
)

// ValueDomain identifies one value cell of a pivot.
type ValueDomain struct {
	Measure string
	Domain  []string
}

// domainKey builds a collision-free set key from a flattened domain:
// every element is quoted, so ["a","1,2"] and ["a,1","2"] stay distinct.
func domainKey(prefix string, domain []string) string {
	var b strings.Builder
	b.WriteString(strconv.Quote(prefix))
	for _, part := range domain {
		b.WriteByte(',')
		b.WriteString(strconv.Quote(part))
	}
	return b.String()
}

// MarkAsValueUsed records that a live formula evaluates measure over domain.
func (c *PivotCache) MarkAsValueUsed(domain []string, measure string) {
	key := domainKey(measure, c.normalizeDomain(domain))
	c.mu.Lock()
	c.usedValues[key] = struct{}{}
	c.mu.Unlock()
}

// MarkAsHeaderUsed records that a live formula evaluates the header of domain.
func (c *PivotCache) MarkAsHeaderUsed(domain []string) {
	key := domainKey("", c.normalizeDomain(domain))
	c.mu.Lock()
	c.usedHeaders[key] = struct{}{}
	c.mu.Unlock()
}

// IsUsedValue reports whether measure over domain was marked used.
func (c *PivotCache) IsUsedValue(domain []string, measure string) bool {
	key := domainKey(measure, c.normalizeDomain(domain))
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.usedValues[key]
	return ok
}

// IsUsedHeader reports whether the header of domain was marked used.
func (c *PivotCache) IsUsedHeader(domain []string) bool {
	key := domainKey("", c.normalizeDomain(domain))
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.usedHeaders[key]
	return ok
}

// ResetUsage forgets every used value and header, before a full
// re-evaluation of the document.
func (c *PivotCache) ResetUsage() {
	c.mu.Lock()
	c.usedValues = make(map[string]struct{})
	c.usedHeaders = make(map[string]struct{})
	c.mu.Unlock()
}

func (c *PivotCache) normalizeDomain(domain []string) []string {
	out := make([]string, len(domain))
	for i, part := range domain {
		if i%2 == 0 && part != MeasureHeaderField {
			part = c.NormalizeGroupBy(part)
		}
		out[i] = part
	}
	return out
}

// MissingValueDomains lists the value cells of the full pivot table that no
// live formula references.
func (c *PivotCache) MissingValueDomains() []ValueDomain {
	var missing []ValueDomain
	for _, row := range c.rows {
		for _, col := range c.cols {
			domain := c.ValueDomain(row.Values, col.Values)
			if !c.IsUsedValue(domain, col.Measure) {
				missing = append(missing, ValueDomain{Measure: col.Measure, Domain: domain})
			}
		}
	}
	return missing
}

// MissingHeaderDomains lists the row and column headers of the full pivot
// table that no live formula references.
func (c *PivotCache) MissingHeaderDomains() [][]string {
	var missing [][]string
	seen := make(map[string]bool)
	add := func(domain []string) {
		key := domainKey("", domain)
		if seen[key] {
			return
		}
		seen[key] = true
		if !c.IsUsedHeader(domain) {
			missing = append(missing, domain)
		}
	}
	levels := len(c.colGroupBys)
	for band := 0; band <= levels; band++ {
		for _, col := range c.cols {
			values, measure := col.HeaderAt(band, levels)
			add(c.ColumnHeaderDomain(values, measure))
		}
	}
	for _, row := range c.rows {
		add(c.RowHeaderDomain(row.Values))
	}
	return missing
}
