package domain

import (
	"encoding/json"
	"time"
)

const (
	PhasePrepare = "prepare"
	PhaseExtract = "extract"
	PhaseApply   = "apply"
)

const (
	StatusProcessed = "processed"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusPlanned   = "planned" // apply --dry-run
)

// PhaseReport 是每个阶段对外稳定输出（report.json / stdout JSON）的结构。
type PhaseReport struct {
	RunID   string `json:"run_id"`
	Phase   string `json:"phase"`
	Root    string `json:"root"`
	WorkDir string `json:"work_dir"`
	DryRun  bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`

	// ErrorCode/ErrorMsg 描述阶段级错误（例如 missing_state_file）；单条失败见 Items。
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

type ReportSummary struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Planned   int `json:"planned"`
	Batches   int `json:"batches"`
}

// ItemResult 是单个文件在某个阶段的结果。
// prepare：Raw/JPG/Batch/Size；extract：JPG/Rating；apply：JPG/Raw/Rating。
type ItemResult struct {
	Raw    string `json:"raw,omitempty"`
	JPG    string `json:"jpg,omitempty"`
	Batch  int    `json:"batch,omitempty"`
	Size   int64  `json:"size,omitempty"`
	Rating *int   `json:"rating,omitempty"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// Finalize 统一时间为 UTC，并根据 items 计算 summary。
//
// 注意：items 保持处理顺序（即目录枚举顺序），不重新排序；批次分配依赖这个顺序。
func (r *PhaseReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Items == nil {
		r.Items = []ItemResult{}
	}

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusProcessed:
			s.Processed++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusPlanned:
			s.Planned++
		}
		if it.Batch > s.Batches {
			s.Batches = it.Batch
		}
	}
	r.Summary = s
}

// Fail 记录阶段级错误。
func (r *PhaseReport) Fail(err error) {
	if err == nil {
		return
	}
	r.ErrorCode = Code(err)
	r.ErrorMsg = err.Error()
}

// MarshalJSON 仅用于集中约束输出的稳定性；当前透传 encoding/json 的默认行为。
func (r PhaseReport) MarshalJSON() ([]byte, error) {
	type Alias PhaseReport
	return json.Marshal(Alias(r))
}
