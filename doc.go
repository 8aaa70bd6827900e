// Package aztableextractor exports Azure Storage Tables to CSV files with
// manifests.
//
// # Architecture
//
// One run exports one table:
//
//  1. The configuration is read from <data-dir>/config.json (pkg/config).
//  2. The query is built from the static filter, the field selection, the
//     row limit and the watermark of the previous run (pkg/query).
//  3. Pages are read in server order with one page of look-ahead; transient
//     failures are retried with exponential backoff (internal/fetcher,
//     pkg/retry, pkg/tableclient).
//  4. Every row feeds the incremental tracker (internal/incremental) and the
//     writer (internal/writer), which emits either one raw table or the
//     tables of a mapping (pkg/csvmap).
//  5. After a complete export the manifests and the new watermark are
//     written, and the files are optionally mirrored to S3 or GCS
//     (pkg/publish).
//
// # Quick Start
//
//	$ cat /data/config.json
//	{
//	  "parameters": {
//	    "db": {"#connectionString": "DefaultEndpointsProtocol=https;AccountName=...;AccountKey=..."},
//	    "table": "people",
//	    "output": "people",
//	    "mode": "raw",
//	    "incrementalFetchingKey": "Timestamp"
//	  }
//	}
//	$ aztable-extractor run --data-dir /data
//
// Output lands in /data/out/tables/people.csv and people.csv.manifest; the
// watermark in /data/out/state.json.
//
// # Observability
//
// Logs are structured JSON (zap). Prometheus metrics are pushed to a
// Pushgateway when AZT_PUSHGATEWAY_URL is set, and trace spans are printed
// to stderr with --trace.
package aztableextractor
