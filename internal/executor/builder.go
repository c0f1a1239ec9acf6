package executor

import "github.com/sajjad-MoBe/MVCCStore/internal/mvcc"

// Builder assembles a version database and the per-worker execution handles
// bound to its logical partitions.
type Builder struct {
	opts     mvcc.Options
	tableIDs []string
}

// NewBuilder creates a builder with default options.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithOptions sets the version database options.
func (b *Builder) WithOptions(opts mvcc.Options) *Builder {
	b.opts = opts
	return b
}

// WithTables registers version tables to create up front.
func (b *Builder) WithTables(tableIDs ...string) *Builder {
	b.tableIDs = append(b.tableIDs, tableIDs...)
	return b
}

// Build creates the database, its tables, and one execution handle per
// logical partition.
func (b *Builder) Build() (*mvcc.VersionDb, []*Execution) {
	db := mvcc.NewVersionDb(b.opts)
	for _, id := range b.tableIDs {
		db.CreateVersionTable(id)
	}
	executions := make([]*Execution, db.LogicalPartitionCount())
	for i := range executions {
		executions[i] = NewExecution(db, i)
	}
	return db, executions
}
