package receipt

// Status classifies how much of a receipt was extracted.
type Status string

const (
	// StatusSuccess means all three fields were extracted and the amount parsed.
	StatusSuccess Status = "success"
	// StatusPartialFailure means one or more fields are missing or
	// unparseable but the record is still usable.
	StatusPartialFailure Status = "partial_failure"
	// StatusFailure means no usable fields were extracted.
	StatusFailure Status = "failure"
)

// Record is one extracted receipt. Records are created once by an
// extractor and never modified afterwards.
type Record struct {
	SourceFile  string
	PatientName string
	Institution string
	Amount      int  // whole yen; 0 when the amount did not parse
	AmountOK    bool // whether a plausible amount was found
	Status      Status
}

// GroupKey identifies one (institution, patient) bucket. Both components
// are canonicalized with NormalizeName.
type GroupKey struct {
	Institution string
	Patient     string
}

// Group aggregates every Record sharing a GroupKey.
type Group struct {
	Key           GroupKey
	TotalAmount   int      // sum of parsed member amounts, whole yen
	RecordCount   int      // all members, failures included
	AmountedCount int      // members whose amount parsed
	SourceFiles   []string // member filenames in extraction order
}
