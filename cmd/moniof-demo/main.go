// Command moniof-demo runs a small instrumented HTTP service against an
// in-memory SQLite database. It exercises both ingestion paths: /users and
// /users/batch go through the wrapped moniof driver, /orders goes through
// otelsql spans picked up by the probe's span processor. Scrape /metrics for
// the Prometheus families and watch the x-moniof-* response headers.
package main

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"net/http"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/go-chi/chi/v5"
	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/srotas-space/moniof"
	moniofhttp "github.com/srotas-space/moniof/instrumentation/http"
	moniofsql "github.com/srotas-space/moniof/instrumentation/sql"
	"github.com/srotas-space/moniof/pkg/config"
)

const listenAddr = ":8080"

func main() {
	log, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	// demo-friendly thresholds so the endpoints below actually trip them
	if cfg.SlowDBThreshold == 0 {
		cfg.SlowDBThreshold = 200 * time.Millisecond
	}

	probe, err := moniof.New(cfg, log)
	if err != nil {
		log.Fatal("init moniof", zap.Error(err))
	}
	defer probe.Shutdown(context.Background())

	// SQL spans from otelsql feed the probe through its span processor.
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(probe.SpanProcessor()))
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)

	usersDB := openUsersDB(log, probe)
	defer usersDB.Close()
	ordersDB := openOrdersDB(log)
	defer ordersDB.Close()

	r := chi.NewRouter()
	r.Get("/users", listUsersNPlusOne(usersDB))
	r.Get("/users/batch", listUsersBatch(usersDB))
	r.Get("/orders", listOrders(ordersDB))
	r.Get("/slow", slowQuery(usersDB))
	r.Get("/broken", brokenQuery(usersDB))
	r.Handle("/metrics", probe.MetricsHandler())

	log.Info("moniof demo listening",
		zap.String("addr", listenAddr),
		zap.Strings("endpoints", []string{"/users", "/users/batch", "/orders", "/slow", "/broken", "/metrics"}))

	handler := moniofhttp.Wrap(r, probe, "moniof-demo")
	if err := http.ListenAndServe(listenAddr, handler); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

// openUsersDB opens the wrapped-driver database and seeds it.
func openUsersDB(log *zap.Logger, probe *moniof.Probe) *sql.DB {
	moniofsql.Register("sqlite3-moniof", &sqlite3.SQLiteDriver{}, probe.Recorder())
	db, err := moniofsql.Open("sqlite3-moniof", "file:users?mode=memory&cache=shared")
	if err != nil {
		log.Fatal("open users db", zap.Error(err))
	}
	db.SetMaxOpenConns(1)
	seed(log, db, `
		CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT);
		INSERT INTO users (id, name) VALUES (1, 'Alice'), (2, 'Bob'), (3, 'Charlie');
	`)
	return db
}

// openOrdersDB opens the otelsql-instrumented database: every query becomes
// a db.system client span that the span processor routes into the probe.
func openOrdersDB(log *zap.Logger) *sql.DB {
	db, err := otelsql.Open("sqlite3", "file:orders?mode=memory&cache=shared",
		otelsql.WithAttributes(semconv.DBSystemSqlite),
		otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}),
		// otelsql omits the statement by default; the probe needs it for
		// stable query keys.
		otelsql.WithAttributesGetter(func(_ context.Context, _ otelsql.Method, query string, _ []driver.NamedValue) []attribute.KeyValue {
			if query == "" {
				return nil
			}
			return []attribute.KeyValue{attribute.String("db.statement", query)}
		}),
	)
	if err != nil {
		log.Fatal("open orders db", zap.Error(err))
	}
	db.SetMaxOpenConns(1)
	seed(log, db, `
		CREATE TABLE orders (id INTEGER PRIMARY KEY, user_id INTEGER, amount REAL);
		INSERT INTO orders (id, user_id, amount) VALUES (1, 1, 9.99), (2, 1, 19.99), (3, 2, 4.50);
	`)
	return db
}

func seed(log *zap.Logger, db *sql.DB, schema string) {
	if _, err := db.Exec(schema); err != nil {
		log.Fatal("seed database", zap.Error(err))
	}
}

// listUsersNPlusOne deliberately fetches users one by one so the probe flags
// an N+1 pattern.
func listUsersNPlusOne(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		names := make([]string, 0, 3)
		for id := 1; id <= 3; id++ {
			var name string
			if err := db.QueryRowContext(ctx, "SELECT name FROM users WHERE id = ?", id).Scan(&name); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			names = append(names, name)
		}
		writeJSON(w, names)
	}
}

// listUsersBatch does the same work in one query.
func listUsersBatch(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := db.QueryContext(r.Context(), "SELECT name FROM users ORDER BY id")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			names = append(names, name)
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, names)
	}
}

func listOrders(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var total float64
		err := db.QueryRowContext(r.Context(), "SELECT COALESCE(SUM(amount), 0) FROM orders").Scan(&total)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]float64{"total": total})
	}
}

// slowQuery burns CPU inside SQLite so the statement itself trips the
// slow-command threshold.
func slowQuery(db *sql.DB) http.HandlerFunc {
	const q = `WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x+1 FROM c WHERE x < 3000000)
		SELECT COUNT(*) FROM c`
	return func(w http.ResponseWriter, r *http.Request) {
		var n int
		if err := db.QueryRowContext(r.Context(), q).Scan(&n); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]int{"count": n})
	}
}

func brokenQuery(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := db.ExecContext(r.Context(), "SELECT * FROM no_such_table"); err != nil {
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
