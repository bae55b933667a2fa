package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

// foreignKey is one source column pointing at a referenced table.
type foreignKey struct {
	Table, Column, RefTable string
}

func (f foreignKey) String() string {
	return fmt.Sprintf("%s(%s) -> %s", f.Table, f.Column, f.RefTable)
}

// expectedFKs are the relations the upload workflow relies on.
var expectedFKs = []foreignKey{
	{"users", "role_id", "roles"},
	{"users", "department_id", "departments"},
	{"kpis", "department_id", "departments"},
	{"kpi_progress", "kpi_id", "kpis"},
	{"kpi_progress", "uploaded_file_id", "uploaded_files"},
	{"milestones", "kpi_id", "kpis"},
	{"uploaded_files", "uploaded_by", "users"},
	{"refresh_tokens", "user_id", "users"},
}

func main() {
	check := flag.Bool("check", true, "exit non-zero when an expected foreign key is missing")
	flag.Parse()
	_ = godotenv.Load()

	found, err := inspectFKs(os.Getenv("DB_DSN"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	missing := missingFKs(found, expectedFKs)
	for _, m := range missing {
		fmt.Printf("MISSING %s\n", m)
	}
	if *check && len(missing) > 0 {
		os.Exit(1)
	}
}

// inspectFKs connects to Postgres using dsn and prints foreign key constraints.
func inspectFKs(dsn string) ([]foreignKey, error) {
	if dsn == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT
		  con.oid::regclass::text AS constraint_name,
		  rel.relname AS table_name,
		  array_to_string(array_agg(att.attname ORDER BY u.attnum), ',') AS src_columns,
		  confrel.relname AS referenced_table,
		  pg_get_constraintdef(con.oid) AS definition
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_class confrel ON confrel.oid = con.confrelid
		JOIN unnest(con.conkey) WITH ORDINALITY AS u(attnum, ord) ON true
		JOIN pg_attribute att ON att.attrelid = con.conrelid AND att.attnum = u.attnum
		WHERE con.contype = 'f'
		GROUP BY con.oid, rel.relname, confrel.relname
		ORDER BY rel.relname, constraint_name;
	`)
	if err != nil {
		return nil, fmt.Errorf("query constraints: %w", err)
	}
	defer rows.Close()

	var out []foreignKey
	fmt.Println("Foreign keys:")
	for rows.Next() {
		var cname, table, reftable, def string
		var srcCols sql.NullString
		if err := rows.Scan(&cname, &table, &srcCols, &reftable, &def); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		fmt.Printf("- %s: %s(%s) -> %s\n    def: %s\n", cname, table, srcCols.String, reftable, def)
		for _, col := range strings.Split(srcCols.String, ",") {
			out = append(out, foreignKey{Table: table, Column: col, RefTable: reftable})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func missingFKs(found, expected []foreignKey) []foreignKey {
	have := make(map[foreignKey]bool, len(found))
	for _, f := range found {
		have[f] = true
	}
	var missing []foreignKey
	for _, e := range expected {
		if !have[e] {
			missing = append(missing, e)
		}
	}
	return missing
}
