package dataset

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/KaramelBytes/churnflow-cli/internal/utils"
)

func arrowType(k Kind) arrow.DataType {
	switch k {
	case KindInt:
		return arrow.PrimitiveTypes.Int64
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindString:
		return arrow.BinaryTypes.String
	default:
		return arrow.PrimitiveTypes.Float64
	}
}

// Schema returns the arrow schema the table is written with.
func (t *Table) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(t.Columns))
	for i, c := range t.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// EncodeParquet serializes the table as a single-row-group, Snappy-compressed
// Parquet file. Equal tables encode to equal bytes.
func EncodeParquet(t *Table) ([]byte, error) {
	schema := t.Schema()
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	for i, c := range t.Columns {
		switch fb := b.Field(i).(type) {
		case *array.Int64Builder:
			fb.AppendValues(c.Ints, c.Valid)
		case *array.Float64Builder:
			fb.AppendValues(c.Floats, c.Valid)
		case *array.BooleanBuilder:
			fb.AppendValues(c.Bools, c.Valid)
		case *array.StringBuilder:
			fb.AppendValues(c.Strings, c.Valid)
		default:
			return nil, fmt.Errorf("column %q: unsupported builder %T", c.Name, fb)
		}
	}
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("write parquet: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteParquet writes the table to path, creating parent directories and
// replacing any existing file atomically.
func WriteParquet(path string, t *Table) error {
	data, err := EncodeParquet(t)
	if err != nil {
		return err
	}
	if err := utils.EnsureParentDir(path); err != nil {
		return err
	}
	return utils.SafeWriteFile(path, data)
}

// ReadParquet loads a Parquet file into a Table. Integer, floating point,
// boolean and string columns are supported.
func ReadParquet(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open parquet: %w", err)
	}
	defer f.Close()

	mem := memory.DefaultAllocator
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, fmt.Errorf("read parquet: %w", err)
	}
	defer tbl.Release()

	n := int(tbl.NumRows())
	out := &Table{Columns: make([]*Column, 0, int(tbl.NumCols()))}
	for i := 0; i < int(tbl.NumCols()); i++ {
		col := tbl.Column(i)
		c, err := fromChunks(col.Name(), col.DataType(), col.Data().Chunks(), n)
		if err != nil {
			return nil, err
		}
		out.Columns = append(out.Columns, c)
	}
	return out, nil
}

func fromChunks(name string, dt arrow.DataType, chunks []arrow.Array, n int) (*Column, error) {
	c := &Column{Name: name, Valid: make([]bool, 0, n)}
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		c.Kind = KindInt
		c.Ints = make([]int64, 0, n)
	case arrow.FLOAT32, arrow.FLOAT64:
		c.Kind = KindFloat
		c.Floats = make([]float64, 0, n)
	case arrow.BOOL:
		c.Kind = KindBool
		c.Bools = make([]bool, 0, n)
	case arrow.STRING, arrow.LARGE_STRING:
		c.Kind = KindString
		c.Strings = make([]string, 0, n)
	default:
		return nil, fmt.Errorf("column %q: unsupported parquet type %s", name, dt)
	}
	for _, chunk := range chunks {
		for i := 0; i < chunk.Len(); i++ {
			valid := !chunk.IsNull(i)
			c.Valid = append(c.Valid, valid)
			switch a := chunk.(type) {
			case *array.Int64:
				c.Ints = append(c.Ints, a.Value(i))
			case *array.Int32:
				c.Ints = append(c.Ints, int64(a.Value(i)))
			case *array.Int16:
				c.Ints = append(c.Ints, int64(a.Value(i)))
			case *array.Int8:
				c.Ints = append(c.Ints, int64(a.Value(i)))
			case *array.Uint64:
				c.Ints = append(c.Ints, int64(a.Value(i)))
			case *array.Uint32:
				c.Ints = append(c.Ints, int64(a.Value(i)))
			case *array.Uint16:
				c.Ints = append(c.Ints, int64(a.Value(i)))
			case *array.Uint8:
				c.Ints = append(c.Ints, int64(a.Value(i)))
			case *array.Float64:
				c.Floats = append(c.Floats, a.Value(i))
			case *array.Float32:
				c.Floats = append(c.Floats, float64(a.Value(i)))
			case *array.Boolean:
				c.Bools = append(c.Bools, a.Value(i))
			case *array.String:
				c.Strings = append(c.Strings, a.Value(i))
			case *array.LargeString:
				c.Strings = append(c.Strings, a.Value(i))
			default:
				return nil, fmt.Errorf("column %q: unexpected array %T", name, chunk)
			}
		}
	}
	return c, nil
}
