// Package sanitize truncates application tables on a Postgres database and
// can reseed the role catalogue and the default admin afterwards.
package sanitize

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"srap/models"
	"srap/pkg/logger"
)

// DefaultTables lists the application tables, children first.
var DefaultTables = []string{
	"ai_predictions", "kpi_progress", "milestones", "uploaded_files",
	"kpis", "pillars", "refresh_tokens", "users", "departments", "roles",
}

var nameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type Options struct {
	Tables []string
	DryRun bool
	// Yes must be set for anything to be truncated.
	Yes    bool
	Reseed bool
}

// ValidTables keeps well-formed identifiers and drops blanks and duplicates.
func ValidTables(in []string, log *logger.Logger) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if !nameRe.MatchString(p) {
			log.Warn("skipping invalid table name", "table", p)
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// TruncateStatement builds the TRUNCATE for already validated names.
func TruncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("%q", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Run truncates opts.Tables that exist in the public schema. Output goes to w.
func Run(ctx context.Context, db *gorm.DB, w io.Writer, log *logger.Logger, opts Options) error {
	tables := opts.Tables
	if len(tables) == 0 {
		tables = DefaultTables
	}
	wanted := ValidTables(tables, log)

	existing := []string{}
	for _, t := range wanted {
		var cnt int64
		if err := db.WithContext(ctx).Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			return fmt.Errorf("query pg_tables for %s: %w", t, err)
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			log.Info("table not found, skipping", "table", t)
		}
	}
	if len(existing) == 0 {
		fmt.Fprintln(w, "no requested tables present in the database; nothing to do")
		return nil
	}

	fmt.Fprintln(w, "Tables considered for truncation:")
	for _, t := range existing {
		fmt.Fprintf(w, " - %s\n", t)
	}
	if opts.DryRun {
		fmt.Fprintln(w, "dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return nil
	}
	if !opts.Yes {
		fmt.Fprintln(w, "Destructive operation. Pass --yes to confirm execution. Aborting.")
		return nil
	}

	stmt := TruncateStatement(existing)
	log.Info("executing truncate", "statement", stmt)
	tctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := db.WithContext(tctx).Exec(stmt).Error; err != nil {
		return fmt.Errorf("truncate failed: %w", err)
	}
	fmt.Fprintln(w, "Truncate completed.")

	if opts.Reseed {
		if err := ReseedRolesAndAdmin(db); err != nil {
			return fmt.Errorf("reseed failed: %w", err)
		}
		fmt.Fprintln(w, "Roles and admin user reseeded.")
	}
	return nil
}

// ReseedRolesAndAdmin restores the four roles and admin/admin123.
func ReseedRolesAndAdmin(db *gorm.DB) error {
	for _, name := range models.AllRoles() {
		r := models.Role{Name: name, Description: name.Description()}
		if err := db.Where("name = ?", name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("failed to ensure role %s: %w", name, err)
		}
	}
	var role models.Role
	if err := db.Where("name = ?", models.RoleAdmin).First(&role).Error; err != nil {
		return fmt.Errorf("failed to find admin role: %w", err)
	}
	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count > 0 {
		return nil
	}
	rid := role.ID
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := models.User{Username: "admin", Name: "Administrator", Email: "admin@example.com", HashedPassword: hashed, RoleID: &rid}
	if err := db.Create(&admin).Error; err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}
	return nil
}
