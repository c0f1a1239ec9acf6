package workload

import (
	"fmt"
	"math/rand"
)

// OpKind is the kind of one record operation inside a transaction.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
	OpInsert
	OpDelete
)

// Op is one record operation of a transaction parameter.
type Op struct {
	Kind    OpKind
	TableID string
	Key     string
	Value   []byte
}

// TxParam is the parameter set of one transaction produced by a factory.
type TxParam struct {
	Name string
	Ops  []Op
}

// ParamFactory produces the stream of transaction parameters a worker
// consumes. Next returns false when the stream is exhausted.
type ParamFactory interface {
	Next() (TxParam, bool)
}

// Table identifiers of the benchmark schema.
const (
	TableWarehouse = "warehouse"
	TableDistrict  = "district"
	TableCustomer  = "customer"
	TableStock     = "stock"
	TableOrder     = "orders"
)

// Tables lists every table the benchmark touches.
func Tables() []string {
	return []string{TableWarehouse, TableDistrict, TableCustomer, TableStock, TableOrder}
}

// TPCCConfig shapes the generated transaction mix.
type TPCCConfig struct {
	Warehouses     int
	DistrictsPerWh int
	CustomersPerD  int
	Items          int
	// NewOrderPct is the percentage of new-order transactions; the rest are
	// payments. Zero or a value above 100 selects 50.
	NewOrderPct int
	// TxPerWorker bounds the stream; zero means unbounded.
	TxPerWorker int
	Seed        int64
}

func (c TPCCConfig) withDefaults() TPCCConfig {
	if c.Warehouses <= 0 {
		c.Warehouses = 4
	}
	if c.DistrictsPerWh <= 0 {
		c.DistrictsPerWh = 10
	}
	if c.CustomersPerD <= 0 {
		c.CustomersPerD = 30
	}
	if c.Items <= 0 {
		c.Items = 100
	}
	if c.NewOrderPct <= 0 || c.NewOrderPct > 100 {
		c.NewOrderPct = 50
	}
	return c
}

// TPCCFactory generates a TPC-C-style mix of new-order and payment
// transactions over warehouse-keyed records.
type TPCCFactory struct {
	cfg     TPCCConfig
	r       *rand.Rand
	emitted int
	orders  int64
}

// NewTPCCFactory creates a factory for one worker. Give each worker its own
// factory; Next is not safe for concurrent use.
func NewTPCCFactory(cfg TPCCConfig) *TPCCFactory {
	cfg = cfg.withDefaults()
	return &TPCCFactory{
		cfg: cfg,
		r:   rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Next returns the next transaction parameter.
func (f *TPCCFactory) Next() (TxParam, bool) {
	if f.cfg.TxPerWorker > 0 && f.emitted >= f.cfg.TxPerWorker {
		return TxParam{}, false
	}
	f.emitted++

	if f.r.Intn(100) < f.cfg.NewOrderPct {
		return f.newOrder(), true
	}
	return f.payment(), true
}

// newOrder reads the district, updates a handful of stock records, and
// inserts an order row.
func (f *TPCCFactory) newOrder() TxParam {
	wh := f.r.Intn(f.cfg.Warehouses)
	district := f.r.Intn(f.cfg.DistrictsPerWh)

	ops := []Op{
		{Kind: OpRead, TableID: TableDistrict, Key: districtKey(wh, district)},
	}
	lines := 2 + f.r.Intn(4)
	for i := 0; i < lines; i++ {
		item := f.r.Intn(f.cfg.Items)
		qty := 1 + f.r.Intn(10)
		ops = append(ops,
			Op{Kind: OpRead, TableID: TableStock, Key: stockKey(wh, item)},
			Op{Kind: OpWrite, TableID: TableStock, Key: stockKey(wh, item),
				Value: []byte(fmt.Sprintf("qty=%d", qty))},
		)
	}
	f.orders++
	ops = append(ops, Op{
		Kind:    OpInsert,
		TableID: TableOrder,
		Key:     fmt.Sprintf("o:%d:%d:%d", wh, district, f.orders),
		Value:   []byte(fmt.Sprintf("lines=%d", lines)),
	})
	return TxParam{Name: "new-order", Ops: ops}
}

// payment reads the warehouse and customer and writes both balances.
func (f *TPCCFactory) payment() TxParam {
	wh := f.r.Intn(f.cfg.Warehouses)
	district := f.r.Intn(f.cfg.DistrictsPerWh)
	customer := f.r.Intn(f.cfg.CustomersPerD)
	amount := 1 + f.r.Intn(5000)

	return TxParam{
		Name: "payment",
		Ops: []Op{
			{Kind: OpRead, TableID: TableWarehouse, Key: warehouseKey(wh)},
			{Kind: OpWrite, TableID: TableWarehouse, Key: warehouseKey(wh),
				Value: []byte(fmt.Sprintf("ytd+=%d", amount))},
			{Kind: OpRead, TableID: TableCustomer, Key: customerKey(wh, district, customer)},
			{Kind: OpWrite, TableID: TableCustomer, Key: customerKey(wh, district, customer),
				Value: []byte(fmt.Sprintf("balance-=%d", amount))},
		},
	}
}

func warehouseKey(wh int) string {
	return fmt.Sprintf("w:%d", wh)
}

func districtKey(wh, d int) string {
	return fmt.Sprintf("d:%d:%d", wh, d)
}

func customerKey(wh, d, c int) string {
	return fmt.Sprintf("c:%d:%d:%d", wh, d, c)
}

func stockKey(wh, item int) string {
	return fmt.Sprintf("s:%d:%d", wh, item)
}
