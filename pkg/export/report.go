package export

import "time"

// Report summarizes one export invocation.
type Report struct {
	// Clusters lists the per-cluster results for every file written,
	// in cluster order.
	Clusters []*ClusterReport `json:"clusters"`

	FilesWritten    int           `json:"files_written"`
	RowsWritten     int64         `json:"rows_written"`
	ValuesSkipped   int           `json:"values_skipped"`
	ClustersDropped int           `json:"clusters_dropped"`
	Duration        time.Duration `json:"duration_ns"`
}

// ClusterReport records the outcome for a single cluster.
type ClusterReport struct {
	// File is the path of the Parquet file written for this cluster.
	File string `json:"file"`

	// Attributes are the full attribute names in the cluster, marker
	// attributes included, sorted by name.
	Attributes []string `json:"attributes"`

	// Rows is the number of rows in the file. Columns whose values were
	// skipped may hold fewer values than this.
	Rows int64 `json:"rows"`

	// ValuesSkipped counts values dropped across all columns because
	// they could not be read or did not conform to the inferred type.
	ValuesSkipped int `json:"values_skipped"`
}

func (r *Report) add(cr *ClusterReport) {
	r.Clusters = append(r.Clusters, cr)
	r.FilesWritten++
	r.RowsWritten += cr.Rows
	r.ValuesSkipped += cr.ValuesSkipped
}
