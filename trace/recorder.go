// Package trace records pipeline and memory-controller events of a
// simulated core into a SQLite database.
package trace

import (
	"database/sql"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/rv32sim/timing/memctrl"
	"github.com/sarchlab/rv32sim/timing/pipeline"
)

// DefaultBatchSize is the number of buffered rows that triggers a flush.
const DefaultBatchSize = 10000

type retireRow struct {
	cycle    uint64
	pc       uint32
	inst     string
	rd       uint8
	value    uint32
	regWrite bool
}

type eventRow struct {
	cycle  uint64
	kind   string
	pc     uint32
	detail string
}

type memRow struct {
	id        uint64
	kind      string
	addr      uint32
	size      uint32
	requester string
	submit    uint64
	complete  uint64
}

// Recorder is an akita hook that stores retired instructions, pipeline
// events and memory requests in SQLite. Attach it to a core with
// AcceptHook and to the memory controller with AcceptHook as well.
type Recorder struct {
	*sql.DB

	dbName    string
	batchSize int

	retireStmt *sql.Stmt
	eventStmt  *sql.Stmt
	memStmt    *sql.Stmt

	retires []retireRow
	events  []eventRow
	mems    []memRow
}

// NewRecorder creates a recorder writing to path + ".sqlite3". An empty path
// picks a unique name. Buffered rows are flushed when the program exits
// through atexit.
func NewRecorder(path string) *Recorder {
	r := &Recorder{
		dbName:    path,
		batchSize: DefaultBatchSize,
	}

	atexit.Register(func() { _ = r.Flush() })

	return r
}

// SetBatchSize sets how many rows are buffered before they are written.
func (r *Recorder) SetBatchSize(n int) {
	if n < 1 {
		n = 1
	}
	r.batchSize = n
}

// Name returns the database file name without extension.
func (r *Recorder) Name() string {
	return r.dbName
}

// Init creates the database and its tables.
func (r *Recorder) Init() error {
	if r.dbName == "" {
		r.dbName = "rv32sim_trace_" + xid.New().String()
	}

	filename := r.dbName + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return fmt.Errorf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return fmt.Errorf("failed to open trace database: %w", err)
	}
	r.DB = db

	if err := r.createTables(); err != nil {
		return err
	}

	return r.prepareStatements()
}

func (r *Recorder) createTables() error {
	stmts := []string{
		`CREATE TABLE retire
		(
			cycle     INTEGER NOT NULL,
			pc        INTEGER NOT NULL,
			inst      VARCHAR(100),
			rd        INTEGER,
			value     INTEGER,
			reg_write BOOLEAN
		);`,
		`CREATE INDEX retire_cycle_index ON retire (cycle);`,
		`CREATE TABLE pipeline_event
		(
			cycle  INTEGER NOT NULL,
			kind   VARCHAR(20) NOT NULL,
			pc     INTEGER,
			detail VARCHAR(200)
		);`,
		`CREATE INDEX pipeline_event_kind_index ON pipeline_event (kind);`,
		`CREATE TABLE mem_request
		(
			id             INTEGER NOT NULL,
			kind           VARCHAR(20) NOT NULL,
			addr           INTEGER NOT NULL,
			size           INTEGER NOT NULL,
			requester      VARCHAR(50),
			submit_cycle   INTEGER,
			complete_cycle INTEGER
		);`,
	}

	for _, s := range stmts {
		if _, err := r.Exec(s); err != nil {
			return fmt.Errorf("failed to create trace tables: %w", err)
		}
	}

	return nil
}

func (r *Recorder) prepareStatements() error {
	var err error

	r.retireStmt, err = r.Prepare(`INSERT INTO retire VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	r.eventStmt, err = r.Prepare(`INSERT INTO pipeline_event VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	r.memStmt, err = r.Prepare(`INSERT INTO mem_request VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	return nil
}

// Func implements sim.Hook.
func (r *Recorder) Func(ctx sim.HookCtx) {
	switch item := ctx.Item.(type) {
	case pipeline.RetireEvent:
		row := retireRow{
			cycle:    item.Cycle,
			pc:       item.PC,
			rd:       item.Rd,
			value:    item.Value,
			regWrite: item.RegWrite,
		}
		if item.Inst != nil {
			row.inst = item.Inst.String()
		}
		r.retires = append(r.retires, row)
	case pipeline.StallEvent:
		r.events = append(r.events, eventRow{
			cycle: item.Cycle, kind: "stall", pc: item.PC, detail: item.Kind.String(),
		})
	case pipeline.FlushEvent:
		r.events = append(r.events, eventRow{
			cycle: item.Cycle, kind: "flush", pc: item.PC,
			detail: fmt.Sprintf("target=0x%08x", item.Target),
		})
	case pipeline.HaltEvent:
		r.events = append(r.events, eventRow{
			cycle: item.Cycle, kind: "halt", pc: item.PC,
			detail: fmt.Sprintf("exit=%d", item.ExitCode),
		})
	case pipeline.FaultEvent:
		r.events = append(r.events, eventRow{
			cycle: item.Cycle, kind: "fault", pc: item.Fault.PC, detail: item.Fault.Error(),
		})
	case *memctrl.Request:
		if ctx.Pos != memctrl.HookPosReqComplete {
			return
		}
		r.mems = append(r.mems, memRow{
			id:        item.ID,
			kind:      item.Kind.String(),
			addr:      item.Addr,
			size:      item.Size,
			requester: item.Requester,
			submit:    item.SubmitCycle,
			complete:  item.CompleteCycle,
		})
	default:
		return
	}

	if len(r.retires)+len(r.events)+len(r.mems) >= r.batchSize {
		if err := r.Flush(); err != nil {
			panic(err)
		}
	}
}

// Flush writes all buffered rows in a single transaction.
func (r *Recorder) Flush() error {
	if r.DB == nil {
		return nil
	}

	if len(r.retires)+len(r.events)+len(r.mems) == 0 {
		return nil
	}

	tx, err := r.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin trace transaction: %w", err)
	}

	if err := r.writeRows(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trace transaction: %w", err)
	}

	r.retires = nil
	r.events = nil
	r.mems = nil

	return nil
}

func (r *Recorder) writeRows(tx *sql.Tx) error {
	for _, row := range r.retires {
		_, err := tx.Stmt(r.retireStmt).Exec(
			row.cycle, row.pc, row.inst, row.rd, row.value, row.regWrite)
		if err != nil {
			return fmt.Errorf("failed to insert retire row: %w", err)
		}
	}

	for _, row := range r.events {
		_, err := tx.Stmt(r.eventStmt).Exec(row.cycle, row.kind, row.pc, row.detail)
		if err != nil {
			return fmt.Errorf("failed to insert pipeline event: %w", err)
		}
	}

	for _, row := range r.mems {
		_, err := tx.Stmt(r.memStmt).Exec(
			row.id, row.kind, row.addr, row.size, row.requester, row.submit, row.complete)
		if err != nil {
			return fmt.Errorf("failed to insert memory request: %w", err)
		}
	}

	return nil
}

// Close flushes buffered rows and closes the database.
func (r *Recorder) Close() error {
	if r.DB == nil {
		return nil
	}

	if err := r.Flush(); err != nil {
		return err
	}

	err := r.DB.Close()
	r.DB = nil

	return err
}
