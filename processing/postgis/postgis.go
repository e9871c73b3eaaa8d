// Package postgis writes resampled points to a PostGIS table.
package postgis

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/go-spatial/geom/encoding/wkb"
	"github.com/lib/pq"
	"github.com/pdok/equidist/crs"
	"github.com/pdok/equidist/processing"
	"github.com/pdok/equidist/resample"
	"github.com/pkg/errors"
)

const defaultSchema = "public"

// IsURL reports whether a target should be written to PostGIS instead of a file.
func IsURL(target string) bool {
	for _, prefix := range []string{"postgres://", "postgresql://", "postgis://"} {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}

// Target writes all points in a single transaction. Nothing is visible to others until Close.
type Target struct {
	url       string
	Schema    string
	Overwrite bool

	table  table
	db     *sql.DB
	tx     *sql.Tx
	insert *sql.Stmt
}

type table struct {
	schema string
	name   string
	srid   int32
}

func NewTarget(url string, overwrite bool) *Target {
	return &Target{url: url, Schema: defaultSchema, Overwrite: overwrite}
}

// connectionParams turns a URL into lib/pq params, disabling ssl unless asked for.
func connectionParams(url string) (string, error) {
	if strings.HasPrefix(url, "postgis://") {
		url = strings.Replace(url, "postgis", "postgres", 1)
	}
	params, err := pq.ParseURL(url)
	if err != nil {
		return "", err
	}
	if !strings.Contains(params, "sslmode=") {
		params += " sslmode=disable"
	}
	return params, nil
}

func (target *Target) Create(schema processing.Schema, c crs.CRS) error {
	srid, err := c.SRID()
	if err != nil {
		return errors.Wrap(resample.ErrWrite, err.Error())
	}
	target.table = table{schema: target.Schema, name: schema.Name, srid: srid}

	params, err := connectionParams(target.url)
	if err != nil {
		return errors.Wrapf(resample.ErrWrite, "invalid connection url: %v", err)
	}
	target.db, err = sql.Open("postgres", params)
	if err != nil {
		return errors.Wrap(resample.ErrWrite, err.Error())
	}
	if err = target.db.Ping(); err != nil {
		return target.failCreate(err)
	}
	if target.tx, err = target.db.Begin(); err != nil {
		return target.failCreate(err)
	}
	if target.Overwrite {
		if _, err = target.tx.Exec(target.table.dropSQL()); err != nil {
			return target.failCreate(err)
		}
	}
	if _, err = target.tx.Exec(target.table.createSQL()); err != nil {
		return target.failCreate(err)
	}
	if target.insert, err = target.tx.Prepare(target.table.insertSQL()); err != nil {
		return target.failCreate(err)
	}
	return nil
}

func (target *Target) failCreate(err error) error {
	_ = target.Abort()
	return errors.Wrapf(resample.ErrWrite, "%s: %v", target.table.qualifiedName(), err)
}

func (target *Target) WriteFeatures(features <-chan processing.Feature) error {
	for feature := range features {
		columns := feature.Columns()
		if len(columns) == 0 {
			return errors.Errorf("feature without %s", processing.IDProperty)
		}
		wkbGeom, err := wkb.EncodeBytes(feature.Geometry())
		if err != nil {
			return err
		}
		if _, err = target.insert.Exec(columns[0], wkbGeom); err != nil {
			return err
		}
	}
	return nil
}

func (target *Target) Close() error {
	if target.tx == nil {
		return target.closeDB()
	}
	_ = target.insert.Close()
	err := target.tx.Commit()
	target.tx = nil
	if closeErr := target.closeDB(); err == nil {
		err = closeErr
	}
	return err
}

// Abort rolls back, leaving the table as it was before Create.
func (target *Target) Abort() error {
	var err error
	if target.tx != nil {
		if target.insert != nil {
			_ = target.insert.Close()
		}
		err = target.tx.Rollback()
		target.tx = nil
	}
	if closeErr := target.closeDB(); err == nil {
		err = closeErr
	}
	return err
}

func (target *Target) closeDB() error {
	if target.db == nil {
		return nil
	}
	err := target.db.Close()
	target.db = nil
	return err
}

func (t table) qualifiedName() string {
	return pq.QuoteIdentifier(t.schema) + "." + pq.QuoteIdentifier(t.name)
}

func (t table) dropSQL() string {
	return fmt.Sprintf(`DROP TABLE IF EXISTS %s`, t.qualifiedName())
}

func (t table) createSQL() string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
            "fid" SERIAL PRIMARY KEY,
            %s INTEGER,
            "geom" geometry(Point, %d)
        )`,
		t.qualifiedName(),
		pq.QuoteIdentifier(processing.IDProperty),
		t.srid,
	)
}

func (t table) insertSQL() string {
	return fmt.Sprintf(`INSERT INTO %s (%s, "geom") VALUES ($1, ST_SetSRID(ST_GeomFromWKB($2), %d))`,
		t.qualifiedName(),
		pq.QuoteIdentifier(processing.IDProperty),
		t.srid,
	)
}
