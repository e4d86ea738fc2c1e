package logstore

import (
	"bytes"
	"encoding/json"

	"github.com/pkg/errors"
	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// Destination field names are free-form, so the archive keeps them as one JSON
// column instead of mapping each to a parquet column.
const archiveSchema = `{
  "Tag": "name=parquet_go_root, repetitiontype=REQUIRED",
  "Fields": [
    {"Tag": "name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
    {"Tag": "name=table, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
    {"Tag": "name=page_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"},
    {"Tag": "name=record_id, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"},
    {"Tag": "name=fields, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"}
  ]
}`

type archiveRow struct {
	RunID    string  `json:"run_id"`
	Table    string  `json:"table"`
	PageID   *string `json:"page_id"`
	RecordID *string `json:"record_id"`
	Fields   *string `json:"fields"`
}

func encodeParquet(runID, table string, rows []Row) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewJSONWriter(archiveSchema, pfw, 4)
	if err != nil {
		return nil, errors.Wrap(err, "create parquet writer")
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range rows {
		line, err := archiveLine(runID, table, r)
		if err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
		if err := pw.Write(line); err != nil {
			_ = pw.WriteStop()
			return nil, errors.Wrap(err, "write parquet row")
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, errors.Wrap(err, "finish parquet file")
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}

// archiveLine renders a row as the JSON document the parquet JSON writer expects.
func archiveLine(runID, table string, r Row) (string, error) {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return "", errors.Wrapf(err, "encode fields of %s", r.PageID)
	}
	row := archiveRow{RunID: runID, Table: table, Fields: optional(string(fields))}
	row.PageID = optional(r.PageID)
	row.RecordID = optional(r.RecordID)

	line, err := json.Marshal(row)
	if err != nil {
		return "", errors.Wrap(err, "encode archive row")
	}
	return string(line), nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
