package receipt

// Aggregate buckets records by grouping key and computes per-group
// totals. Groups come back in first-seen key order, so output is
// deterministic no matter how the records were produced upstream.
// Failure records still count toward RecordCount and SourceFiles; they
// just contribute nothing to the total.
func Aggregate(records []Record) []Group {
	index := make(map[GroupKey]int, len(records))
	groups := make([]Group, 0, len(records))
	for _, r := range records {
		key := KeyFor(r)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		g := &groups[i]
		g.RecordCount++
		g.SourceFiles = append(g.SourceFiles, r.SourceFile)
		if r.AmountOK {
			g.TotalAmount += r.Amount
			g.AmountedCount++
		}
	}
	return groups
}
