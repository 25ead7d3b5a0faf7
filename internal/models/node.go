package models

import "path/filepath"

// NodeKind is the explicit discriminant of the change tree's sum type.
type NodeKind int

const (
	NodeStatusGroup NodeKind = iota + 1
	NodeTimeGroup
	NodeChangeItem
)

func (k NodeKind) String() string {
	switch k {
	case NodeStatusGroup:
		return "status-group"
	case NodeTimeGroup:
		return "time-group"
	case NodeChangeItem:
		return "change-item"
	}
	return "invalid"
}

// Node is one of *StatusGroup, *TimeGroup or *ChangeItem. The interface is
// sealed; consumers switch on the concrete type or on Kind().
type Node interface {
	Kind() NodeKind
	// Identity is unique within one built tree.
	Identity() string
	sealed()
}

// TimeBucket is a mutually exclusive age class relative to a reference "now".
type TimeBucket string

const (
	BucketToday     TimeBucket = "today"
	BucketYesterday TimeBucket = "yesterday"
	BucketLast7     TimeBucket = "last7days"
	BucketLast30    TimeBucket = "last30days"
	BucketThisMonth TimeBucket = "thisMonth"
	BucketLastMonth TimeBucket = "lastMonth"
	BucketOlder     TimeBucket = "older"
	// BucketUnknown holds items whose timestamp could not be resolved.
	BucketUnknown TimeBucket = "unknown"
)

// Buckets lists every bucket in display order.
var Buckets = []TimeBucket{
	BucketToday, BucketYesterday, BucketLast7, BucketLast30,
	BucketThisMonth, BucketLastMonth, BucketOlder, BucketUnknown,
}

// Label is the plain display label for the bucket.
func (b TimeBucket) Label() string {
	switch b {
	case BucketToday:
		return "Today"
	case BucketYesterday:
		return "Yesterday"
	case BucketLast7:
		return "Last 7 days"
	case BucketLast30:
		return "Last 30 days"
	case BucketThisMonth:
		return "This month"
	case BucketLastMonth:
		return "Last month"
	case BucketOlder:
		return "Older"
	case BucketUnknown:
		return "Unknown time"
	}
	return string(b)
}

// ChangeItem is a leaf: one changed path.
type ChangeItem struct {
	Path                 string // repository-relative, slash separated
	AbsPath              string
	OriginalPath         string
	XY                   string
	Change               ChangeKind
	Category             Category
	Staged               bool
	ModifiedAfterStaging bool
	Timestamp            int64 // ms since epoch, 0 when unknown
	Order                int64 // tie-break inside a bucket
}

func (*ChangeItem) Kind() NodeKind { return NodeChangeItem }
func (*ChangeItem) sealed()        {}

// Identity is the group-qualified path, so a file present in both groups stays unique.
func (c *ChangeItem) Identity() string {
	return string(c.Group()) + ":" + c.Path
}

// Group is the StatusGroup the item is listed under.
func (c *ChangeItem) Group() Category {
	if c.Category == CategoryStaged {
		return CategoryStaged
	}
	return CategoryUnstaged
}

// HasTimestamp reports whether a timestamp was resolved.
func (c *ChangeItem) HasTimestamp() bool { return c.Timestamp > 0 }

// Name is the base name for display.
func (c *ChangeItem) Name() string { return filepath.Base(c.Path) }

// TimeGroup groups items of one StatusGroup that fall into the same bucket.
type TimeGroup struct {
	Category Category
	Bucket   TimeBucket
	Label    string
	Items    []*ChangeItem
}

func (*TimeGroup) Kind() NodeKind { return NodeTimeGroup }
func (*TimeGroup) sealed()        {}

func (g *TimeGroup) Identity() string {
	return string(g.Category) + "/" + string(g.Bucket)
}

// StatusGroup is a root: all staged or all unstaged work.
type StatusGroup struct {
	Category   Category
	TimeGroups []*TimeGroup
	TotalCount int
}

func (*StatusGroup) Kind() NodeKind { return NodeStatusGroup }
func (*StatusGroup) sealed()        {}

func (g *StatusGroup) Identity() string { return string(g.Category) }

// Label is the plain display label for the group.
func (g *StatusGroup) Label() string {
	if g.Category == CategoryStaged {
		return "Staged Changes"
	}
	return "Changes"
}

// CountItems sums the items of every time group.
func (g *StatusGroup) CountItems() int {
	n := 0
	for _, tg := range g.TimeGroups {
		n += len(tg.Items)
	}
	return n
}
