package tracing

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/rs/xid"
	"github.com/sarchlab/lanecoalescer/sim"
	"github.com/tebeka/atexit"
)

// SQLiteTracer stores completed tasks into a SQLite database. Tasks are
// buffered and written in batches; the buffer is also flushed when the
// program exits through atexit.
type SQLiteTracer struct {
	*sql.DB

	lock       sync.Mutex
	timeTeller sim.TimeTeller
	dbName     string
	statement  *sql.Stmt

	inflight  map[string]Task
	toWrite   []Task
	batchSize int
}

// NewSQLiteTracer creates a new SQLiteTracer. If path is empty, a unique
// database name is generated.
func NewSQLiteTracer(timeTeller sim.TimeTeller, path string) *SQLiteTracer {
	t := &SQLiteTracer{
		timeTeller: timeTeller,
		dbName:     path,
		inflight:   make(map[string]Task),
		batchSize:  10000,
	}

	atexit.Register(func() { t.Flush() })

	return t
}

// Init creates the database file and the trace table.
func (t *SQLiteTracer) Init() {
	if t.dbName == "" {
		t.dbName = "lanecoalescer_trace_" + xid.New().String()
	}

	filename := t.dbName + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		log.Panicf("file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		log.Panic(err)
	}

	t.DB = db

	t.mustExecute(`
		create table trace
		(
			task_id    varchar(200) not null,
			parent_id  varchar(200),
			kind       varchar(100),
			what       varchar(100),
			location   varchar(100),
			start_time float        not null,
			end_time   float        default 0
		);
	`)
	t.mustExecute(`create index trace_kind_index on trace (kind);`)
	t.mustExecute(`create index trace_location_index on trace (location);`)

	stmt, err := t.Prepare(`INSERT INTO trace VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Panic(err)
	}

	t.statement = stmt
}

// Filename returns the database file the tracer writes into.
func (t *SQLiteTracer) Filename() string {
	return t.dbName + ".sqlite3"
}

// StartTask records the start time of a task.
func (t *SQLiteTracer) StartTask(task Task) {
	task.StartTime = t.timeTeller.CurrentTime()

	t.lock.Lock()
	t.inflight[task.ID] = task
	t.lock.Unlock()
}

// StepTask does nothing.
func (t *SQLiteTracer) StepTask(_ Task) {}

// EndTask buffers the completed task for writing.
func (t *SQLiteTracer) EndTask(task Task) {
	t.lock.Lock()

	original, ok := t.inflight[task.ID]
	if !ok {
		t.lock.Unlock()
		return
	}

	delete(t.inflight, task.ID)
	original.EndTime = t.timeTeller.CurrentTime()
	t.toWrite = append(t.toWrite, original)
	full := len(t.toWrite) >= t.batchSize

	t.lock.Unlock()

	if full {
		t.Flush()
	}
}

// Flush writes all the buffered tasks to the database.
func (t *SQLiteTracer) Flush() {
	t.lock.Lock()
	defer t.lock.Unlock()

	if len(t.toWrite) == 0 || t.DB == nil {
		return
	}

	t.mustExecute("BEGIN TRANSACTION")
	defer t.mustExecute("COMMIT TRANSACTION")

	for _, task := range t.toWrite {
		_, err := t.statement.Exec(
			task.ID,
			task.ParentID,
			task.Kind,
			task.What,
			task.Where,
			float64(task.StartTime),
			float64(task.EndTime),
		)
		if err != nil {
			log.Panicf("cannot write task %s: %v", task.ID, err)
		}
	}

	t.toWrite = nil
}

func (t *SQLiteTracer) mustExecute(query string) sql.Result {
	res, err := t.Exec(query)
	if err != nil {
		log.Panicf("failed to execute %s: %v", query, err)
	}

	return res
}

// TaskQuery selects tasks from a trace database. Empty fields match all.
type TaskQuery struct {
	Kind  string
	Where string
}

// SQLiteTraceReader reads tasks back from a database written by
// SQLiteTracer.
type SQLiteTraceReader struct {
	*sql.DB

	filename string
}

// NewSQLiteTraceReader creates a new SQLiteTraceReader.
func NewSQLiteTraceReader(filename string) *SQLiteTraceReader {
	return &SQLiteTraceReader{filename: filename}
}

// Init establishes a connection to the database.
func (r *SQLiteTraceReader) Init() error {
	db, err := sql.Open("sqlite3", r.filename)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.filename, err)
	}

	r.DB = db

	return nil
}

// ListTasks returns the tasks that match the query.
func (r *SQLiteTraceReader) ListTasks(query TaskQuery) ([]Task, error) {
	rows, err := r.Query(`
		SELECT task_id, parent_id, kind, what, location, start_time, end_time
		FROM trace
		WHERE (? = '' OR kind = ?) AND (? = '' OR location = ?)
		ORDER BY start_time, task_id
	`, query.Kind, query.Kind, query.Where, query.Where)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []Task{}

	for rows.Next() {
		var (
			t          Task
			start, end float64
		)

		err := rows.Scan(
			&t.ID, &t.ParentID, &t.Kind, &t.What, &t.Where, &start, &end)
		if err != nil {
			return nil, err
		}

		t.StartTime = sim.VTimeInSec(start)
		t.EndTime = sim.VTimeInSec(end)
		tasks = append(tasks, t)
	}

	return tasks, rows.Err()
}
