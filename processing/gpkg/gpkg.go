// Package gpkg reads lines from and writes points to GeoPackages.
package gpkg

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	"github.com/pdok/equidist/crs"
	"github.com/pdok/equidist/processing"
	"github.com/pdok/equidist/resample"
	"github.com/pkg/errors"
)

const (
	defaultPageSize = 1000
	geometryColumn  = "geom"
	fidColumn       = "fid"

	undefinedDefinition = "undefined"
)

type featureGPKG struct {
	columns  []interface{}
	geometry geom.Geometry
}

func (f featureGPKG) Columns() []interface{} {
	return f.columns
}

func (f featureGPKG) Geometry() geom.Geometry {
	return f.geometry
}

type column struct {
	cid       int
	name      string
	ctype     string
	notnull   int
	dfltValue *string
	pk        int
}

type Table struct {
	Name    string
	columns []column
	gcolumn string
	gtype   gpkg.GeometryType
	srs     gpkg.SpatialReferenceSystem
}

// SRS returns the spatial reference system the table's geometries are in.
func (t Table) SRS() gpkg.SpatialReferenceSystem {
	return t.srs
}

// geometryTypeFromString returns the numeric value of a geometry string
func geometryTypeFromString(geometrytype string) gpkg.GeometryType {
	switch strings.ToUpper(geometrytype) {
	case "GEOMETRY":
		return gpkg.Geometry
	case "POINT":
		return gpkg.Point
	case "LINESTRING":
		return gpkg.Linestring
	case "POLYGON":
		return gpkg.Polygon
	case "MULTIPOINT":
		return gpkg.MultiPoint
	case "MULTILINESTRING":
		return gpkg.MultiLinestring
	case "MULTIPOLYGON":
		return gpkg.MultiPolygon
	case "GEOMETRYCOLLECTION":
		return gpkg.GeometryCollection
	default:
		return gpkg.Geometry
	}
}

// SourceGeopackage reads the features of one feature table, by default the first one registered.
type SourceGeopackage struct {
	// Layer selects the table to read, optional.
	Layer string

	path   string
	table  Table
	handle *gpkg.Handle
}

func NewSource(path, layer string) *SourceGeopackage {
	return &SourceGeopackage{path: path, Layer: layer}
}

// Table returns the table that was read. Only valid after ReadFeatures.
func (source *SourceGeopackage) Table() Table {
	return source.table
}

// DeclaredCRS returns the CRS of the table that was read, if it has a known organization code.
// Only valid after ReadFeatures.
func (source *SourceGeopackage) DeclaredCRS() (crs.CRS, bool) {
	srs := source.table.srs
	if srs.Organization == "" || srs.OrganizationCoordsysID <= 0 {
		return crs.CRS{}, false
	}
	c, err := crs.Parse(fmt.Sprintf("%s:%d", srs.Organization, srs.OrganizationCoordsysID))
	if err != nil {
		return crs.CRS{}, false
	}
	return c, true
}

func (source *SourceGeopackage) ReadFeatures(features chan<- processing.Feature) error {
	defer close(features)

	if _, err := os.Stat(source.path); err != nil {
		if os.IsNotExist(err) {
			return errors.Wrap(resample.ErrNotFound, source.path)
		}
		return errors.Wrapf(resample.ErrRead, "%s: %v", source.path, err)
	}
	handle, err := gpkg.Open(source.path)
	if err != nil {
		return errors.Wrapf(resample.ErrRead, "error opening GeoPackage %s: %v", source.path, err)
	}
	source.handle = handle
	defer source.handle.Close()

	source.table, err = source.selectTable()
	if err != nil {
		return err
	}
	return source.readTable(features)
}

func (source *SourceGeopackage) selectTable() (Table, error) {
	tables, err := getTableInfo(source.handle)
	if err != nil {
		return Table{}, errors.Wrapf(resample.ErrRead, "%s: %v", source.path, err)
	}
	for _, t := range tables {
		if source.Layer == "" || t.Name == source.Layer {
			return t, nil
		}
	}
	if source.Layer != "" {
		return Table{}, errors.Wrapf(resample.ErrRead, "%s: no feature table %q", source.path, source.Layer)
	}
	return Table{}, errors.Wrapf(resample.ErrEmptyInput, "%s: no feature tables", source.path)
}

func (source *SourceGeopackage) readTable(features chan<- processing.Feature) error {
	rows, err := source.handle.Query(source.table.selectSQL())
	if err != nil {
		return errors.Wrapf(resample.ErrRead, "error querying %s: %v", source.table.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errors.Wrapf(resample.ErrRead, "error reading the columns: %v", err)
	}

	for rows.Next() {
		vals := make([]interface{}, len(cols))
		valPtrs := make([]interface{}, len(cols))
		for i := 0; i < len(cols); i++ {
			valPtrs[i] = &vals[i]
		}

		if err = rows.Scan(valPtrs...); err != nil {
			return errors.Wrapf(resample.ErrRead, "err reading row values: %v", err)
		}
		var f featureGPKG
		var c []interface{}

		for i, colName := range cols {
			switch colName {
			case source.table.gcolumn:
				raw, ok := vals[i].([]byte)
				if !ok {
					// NULL geometry, left to the resampler to reject
					continue
				}
				wkbgeom, err := gpkg.DecodeGeometry(raw)
				if err != nil {
					return errors.Wrapf(resample.ErrRead, "error decoding the geometry: %v", err)
				}
				f.geometry = wkbgeom.Geometry
			default:
				switch v := vals[i].(type) {
				case []uint8:
					c = append(c, string(v))
				case int64, float64, time.Time, string, nil:
					c = append(c, v)
				default:
					return errors.Wrapf(resample.ErrRead, "unexpected type for sqlite column data: %v: %T", cols[i], v)
				}
			}
		}
		f.columns = c
		features <- f
	}
	if err = rows.Err(); err != nil {
		return errors.Wrapf(resample.ErrRead, "%v", err)
	}
	return nil
}

// TargetGeopackage writes points into a single feature table, committing every pagesize features.
// The GeoPackage is built next to its destination and only moved into place by Close.
type TargetGeopackage struct {
	path     string
	tmpPath  string
	pagesize int
	table    Table
	srid     int32
	handle   *gpkg.Handle
}

func NewTarget(path string, pagesize int) *TargetGeopackage {
	if pagesize <= 0 {
		pagesize = defaultPageSize
	}
	return &TargetGeopackage{path: path, pagesize: pagesize}
}

func (target *TargetGeopackage) Create(schema processing.Schema, c crs.CRS) error {
	srid, err := c.SRID()
	if err != nil {
		return errors.Wrapf(resample.ErrWrite, "%s: %v", target.path, err)
	}
	target.srid = srid
	target.table = tableForSchema(schema, spatialReferenceSystem(c, srid))

	tmp, err := os.CreateTemp(filepath.Dir(target.path), "."+filepath.Base(target.path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(resample.ErrWrite, "%s: %v", target.path, err)
	}
	target.tmpPath = tmp.Name()
	if err = tmp.Close(); err != nil {
		return target.failCreate(err)
	}
	// sqlite takes an empty file for a new database
	target.handle, err = gpkg.Open(target.tmpPath)
	if err != nil {
		return target.failCreate(err)
	}
	if definition := knownDefinition(target.handle, target.srid); definition != "" {
		target.table.srs.Definition = definition
	}
	if err = target.handle.UpdateSRS(target.table.srs); err != nil {
		return target.failCreate(err)
	}
	if err = buildTable(target.handle, target.table); err != nil {
		return target.failCreate(err)
	}
	return nil
}

func (target *TargetGeopackage) failCreate(err error) error {
	_ = target.Abort()
	return errors.Wrapf(resample.ErrWrite, "%s: %v", target.path, err)
}

func (target *TargetGeopackage) WriteFeatures(features <-chan processing.Feature) error {
	var ext *geom.Extent
	var page []processing.Feature

	for feature := range features {
		page = append(page, feature)
		if len(page)%target.pagesize == 0 {
			if err := target.writeFeatures(page, &ext); err != nil {
				return err
			}
			page = nil
		}
	}
	if err := target.writeFeatures(page, &ext); err != nil {
		return err
	}
	if ext == nil {
		return nil
	}
	if err := target.handle.UpdateGeometryExtent(target.table.Name, ext); err != nil {
		return fmt.Errorf("failed to update extent: %w", err)
	}
	return nil
}

func (target *TargetGeopackage) writeFeatures(features []processing.Feature, ext **geom.Extent) error {
	if len(features) == 0 {
		return nil
	}
	tx, err := target.handle.Begin()
	if err != nil {
		return fmt.Errorf("could not start a transaction: %w", err)
	}

	stmt, err := tx.Prepare(target.table.insertSQL())
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("could not prepare a statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range features {
		sb, err := gpkg.NewBinary(target.srid, f.Geometry())
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not create a binary geometry: %w", err)
		}

		data := f.Columns()
		data = append(data, sb)

		if _, err = stmt.Exec(data...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("could not insert feature: %w", err)
		}

		if *ext == nil {
			*ext, err = geom.NewExtentFromGeometry(f.Geometry())
			if err != nil {
				*ext = nil
				log.Println("Failed to create new extent:", err)
			}
		} else {
			_ = (*ext).AddGeometry(f.Geometry())
		}
	}
	return tx.Commit()
}

// Close closes the GeoPackage and moves it to its destination, replacing what was there.
func (target *TargetGeopackage) Close() error {
	if target.handle == nil {
		return nil
	}
	err := target.handle.Close()
	target.handle = nil
	if err == nil {
		err = os.Rename(target.tmpPath, target.path)
	}
	if err != nil {
		_ = target.Abort()
		return err
	}
	target.tmpPath = ""
	return nil
}

// Abort closes and removes the GeoPackage being built. The destination is left untouched.
func (target *TargetGeopackage) Abort() error {
	if target.handle != nil {
		_ = target.handle.Close()
		target.handle = nil
	}
	if target.tmpPath == "" {
		return nil
	}
	err := os.Remove(target.tmpPath)
	target.tmpPath = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// spatialReferenceSystem describes the CRS for gpkg_spatial_ref_sys.
// The definition is left undefined, readers resolve it by organization and code.
func spatialReferenceSystem(c crs.CRS, srid int32) gpkg.SpatialReferenceSystem {
	return gpkg.SpatialReferenceSystem{
		Name:                   c.String(),
		ID:                     int(srid),
		Organization:           c.AuthorityName,
		OrganizationCoordsysID: int(srid),
		Definition:             undefinedDefinition,
		Description:            c.URN(),
	}
}

func tableForSchema(schema processing.Schema, srs gpkg.SpatialReferenceSystem) Table {
	t := Table{
		Name:    schema.Name,
		gcolumn: geometryColumn,
		gtype:   geometryTypeFromString(schema.GeometryType),
		srs:     srs,
	}
	t.columns = append(t.columns, column{name: fidColumn, ctype: "INTEGER", pk: 1})
	for p := schema.Properties.Oldest(); p != nil; p = p.Next() {
		t.columns = append(t.columns, column{name: p.Key, ctype: sqliteType(p.Value)})
	}
	t.columns = append(t.columns, column{name: geometryColumn, ctype: strings.ToUpper(schema.GeometryType)})
	return t
}

func sqliteType(schemaType string) string {
	switch schemaType {
	case processing.IntegerType:
		return "INTEGER"
	case "float":
		return "REAL"
	default:
		return "TEXT"
	}
}

// createSQL creates a CREATE statement on the given table and column information
// used for creating feature tables in the target Geopackage
func (t Table) createSQL() string {
	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%v"`, t.Name)
	var columnparts []string
	for _, column := range t.columns {
		columnpart := `"` + column.name + `" ` + column.ctype
		if column.notnull == 1 {
			columnpart = columnpart + ` NOT NULL`
		}
		if column.pk == 1 {
			columnpart = columnpart + ` PRIMARY KEY`
		}

		columnparts = append(columnparts, columnpart)
	}

	query := create + `(` + strings.Join(columnparts, `, `) + `);`
	return query
}

// selectSQL build a SELECT statement based on the table and columns
// used for reading the source features, in storage order
func (t Table) selectSQL() string {
	var csql []string
	for _, c := range t.columns {
		csql = append(csql, `"`+c.name+`"`)
	}
	query := `SELECT ` + strings.Join(csql, `,`) + ` FROM "` + t.Name + `" ORDER BY rowid;`
	return query
}

// insertSQL used for writing the features
// build the INSERT statement based on the table and columns, skipping the primary key
func (t Table) insertSQL() string {
	var csql, vsql []string
	for _, c := range t.columns {
		if c.name != t.gcolumn && c.pk != 1 {
			csql = append(csql, `"`+c.name+`"`)
			vsql = append(vsql, `?`)
		}
	}
	csql = append(csql, `"`+t.gcolumn+`"`)
	vsql = append(vsql, `?`)
	query := `INSERT INTO "` + t.Name + `"(` + strings.Join(csql, `,`) + `) VALUES(` + strings.Join(vsql, `,`) + `)`
	return query
}

// getTableInfo collects the feature tables registered in the GeoPackage
func getTableInfo(h *gpkg.Handle) ([]Table, error) {
	query := `SELECT table_name, column_name, geometry_type_name, srs_id FROM gpkg_geometry_columns ORDER BY table_name;`
	rows, err := h.Query(query)
	if err != nil {
		return nil, fmt.Errorf("error querying %v: %w", query, err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t Table
		var gtype string
		var srsID int
		if err = rows.Scan(&t.Name, &t.gcolumn, &gtype, &srsID); err != nil {
			return nil, fmt.Errorf("error reading the source table information: %w", err)
		}
		t.gtype = geometryTypeFromString(gtype)
		t.srs.ID = srsID
		tables = append(tables, t)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	// the cursor has to be done before the next queries
	for i := range tables {
		if tables[i].columns, err = getTableColumns(h, tables[i].Name); err != nil {
			return nil, err
		}
		tables[i].srs = getSpatialReferenceSystem(h, tables[i].srs.ID)
	}
	return tables, nil
}

// getSpatialReferenceSystem extracts this based on the given SRS id
func getSpatialReferenceSystem(h *gpkg.Handle, id int) gpkg.SpatialReferenceSystem {
	srs := gpkg.SpatialReferenceSystem{ID: id}
	query := `SELECT srs_name, srs_id, organization, organization_coordsys_id, definition, description FROM gpkg_spatial_ref_sys WHERE srs_id = ?;`

	row := h.QueryRow(query, id)
	var description *string
	if err := row.Scan(&srs.Name, &srs.ID, &srs.Organization, &srs.OrganizationCoordsysID, &srs.Definition, &description); err != nil {
		log.Printf("could not read spatial reference system %d: %s", id, err)
		return srs
	}
	if description != nil {
		srs.Description = *description
	}
	return srs
}

// knownDefinition returns the WKT a new GeoPackage already holds for an SRS (e.g. 4326), if any.
func knownDefinition(h *gpkg.Handle, id int32) string {
	var definition string
	err := h.QueryRow(`SELECT definition FROM gpkg_spatial_ref_sys WHERE srs_id = ?;`, id).Scan(&definition)
	if err != nil || definition == undefinedDefinition {
		return ""
	}
	return definition
}

// getTableColumns collects the column information of a given table
func getTableColumns(h *gpkg.Handle, table string) ([]column, error) {
	query := `PRAGMA table_info('%v');`
	rows, err := h.Query(fmt.Sprintf(query, table))
	if err != nil {
		return nil, fmt.Errorf("error querying %v: %w", query, err)
	}
	defer rows.Close()

	var columns []column
	for rows.Next() {
		var column column
		err := rows.Scan(&column.cid, &column.name, &column.ctype, &column.notnull, &column.dfltValue, &column.pk)
		if err != nil {
			return nil, fmt.Errorf("error getting the column information: %w", err)
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

// buildTable creates a given destination table with the necessary gpkg_ information
func buildTable(h *gpkg.Handle, t Table) error {
	if _, err := h.Exec(t.createSQL()); err != nil {
		return fmt.Errorf("error building table in target GeoPackage: %w", err)
	}

	err := h.AddGeometryTable(gpkg.TableDescription{
		Name:          t.Name,
		ShortName:     t.Name,
		Description:   t.Name,
		GeometryField: t.gcolumn,
		GeometryType:  t.gtype,
		SRS:           int32(t.srs.ID),
		//
		Z: gpkg.Prohibited,
		M: gpkg.Prohibited,
	})
	if err != nil {
		return fmt.Errorf("error adding geometry table in target GeoPackage: %w", err)
	}
	return nil
}
