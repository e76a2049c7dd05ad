// Package run 编排 prepare / extract / apply 三个阶段。
//
// 每个阶段都是独立调用，只通过工作目录中的状态文件衔接；
// 状态表在阶段末尾整表写入一次，中途失败或被中断时不会写出半张表。
package run

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/John-Robertt/cullhelper/internal/app/planner"
	"github.com/John-Robertt/cullhelper/internal/config"
	"github.com/John-Robertt/cullhelper/internal/domain"
	"github.com/John-Robertt/cullhelper/internal/metadata"
	"github.com/John-Robertt/cullhelper/internal/scan"
	"github.com/John-Robertt/cullhelper/internal/store"
	"github.com/John-Robertt/cullhelper/internal/workspace"
)

// Deps 是阶段执行所需的外部协作者。每个阶段只用到其中一部分。
type Deps struct {
	Fs        afero.Fs
	Extractor metadata.PreviewExtractor // prepare
	Reader    metadata.Reader           // extract
	Writer    metadata.Writer           // apply（dry-run 时可为 nil）
	Observer  Observer
}

type phase struct {
	eff config.EffectiveConfig
	ws  workspace.Workspace
	st  store.Store
	obs Observer
	rr  domain.PhaseReport
}

func begin(name string, eff config.EffectiveConfig, deps Deps) *phase {
	obs := deps.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	fsys := deps.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	ws := workspace.New(fsys, eff.Root)

	obs.OnStart(name, eff)
	return &phase{
		eff: eff,
		ws:  ws,
		st:  store.New(ws),
		obs: obs,
		rr: domain.PhaseReport{
			RunID:     uuid.NewString(),
			Phase:     name,
			Root:      ws.Root,
			WorkDir:   ws.Dir,
			DryRun:    eff.DryRun && name == domain.PhaseApply,
			StartedAt: time.Now().UTC(),
			Items:     make([]domain.ItemResult, 0, 64),
		},
	}
}

func (p *phase) item(res domain.ItemResult, total int, dur time.Duration) {
	p.rr.Items = append(p.rr.Items, res)
	p.obs.OnItemDone(len(p.rr.Items), total, res, dur)
}

// finish 收尾报告并写入 report.json。工作目录不存在时（extract/apply 缺前置状态）不创建它。
func (p *phase) finish(err error) (domain.PhaseReport, error) {
	if err != nil && errors.Is(err, context.Canceled) && domain.Code(err) == "" {
		err = &domain.Error{Code: domain.ErrCodeInterrupted, Err: err}
	}
	p.rr.Fail(err)
	p.rr.FinishedAt = time.Now().UTC()
	p.rr.Finalize()

	if ok, _ := afero.DirExists(p.ws.Fs, p.ws.Dir); ok {
		started := time.Now()
		if serr := p.st.SaveReport(p.rr); serr != nil {
			err = errors.Join(err, serr)
		}
		p.obs.OnPhaseDone("report", map[string]any{"path": p.ws.ReportPath()}, time.Since(started))
	}
	return p.rr, err
}

// Prepare 扫描源目录中的 RAW，分批提取预览并整表写入 mapping.json。
//
// 单个预览提取失败不会中断遍历；mapping 落盘之后才返回 *domain.PreviewFailuresError，
// 其中列出全部失败的 RAW 路径。
func Prepare(ctx context.Context, eff config.EffectiveConfig, deps Deps) (domain.PhaseReport, error) {
	p := begin(domain.PhasePrepare, eff, deps)

	started := time.Now()
	files, err := scan.ScanRaws(p.ws.Fs, p.ws.Root, eff.RawExts)
	if err != nil {
		return p.finish(&domain.Error{Code: domain.ErrCodeIOFailed, Path: p.ws.Root, Err: err})
	}
	p.obs.OnPhaseDone("scan", map[string]any{"raws": len(files)}, time.Since(started))

	limit := eff.Limit
	if limit <= 0 {
		limit = config.DefaultLimit
	}
	pl, err := planner.New(p.ws, limit, deps.Extractor)
	if err != nil {
		return p.finish(err)
	}
	pl.OnEvent = func(ev planner.Event) {
		p.item(prepareItem(ev), len(files), ev.Dur)
	}

	started = time.Now()
	res, err := pl.Plan(ctx, slices.Values(files))
	if err != nil {
		if ctx.Err() == nil && domain.Code(err) == "" {
			err = &domain.Error{Code: domain.ErrCodeIOFailed, Path: p.ws.Dir, Err: err}
		}
		return p.finish(err)
	}
	reused := 0
	for _, a := range res.Assignments {
		if a.Reused {
			reused++
		}
	}
	p.obs.OnPhaseDone("plan", map[string]any{
		"assigned": len(res.Assignments),
		"reused":   reused,
		"failed":   len(res.Failures),
		"batch":    res.Batches,
	}, time.Since(started))

	started = time.Now()
	if err := p.st.SaveMapping(res.Mapping); err != nil {
		return p.finish(err)
	}
	p.obs.OnPhaseDone("save", map[string]any{"entries": res.Mapping.Len(), "path": p.ws.MappingPath()}, time.Since(started))

	if len(res.Failures) > 0 {
		pf := &domain.PreviewFailuresError{}
		for _, f := range res.Failures {
			pf.Paths = append(pf.Paths, f.Raw.AbsPath)
			pf.Errs = append(pf.Errs, f.Err)
		}
		return p.finish(pf)
	}
	return p.finish(nil)
}

func prepareItem(ev planner.Event) domain.ItemResult {
	a := ev.Assignment
	it := domain.ItemResult{
		Raw:   a.Raw.AbsPath,
		JPG:   a.JPG,
		Batch: a.Batch,
		Size:  a.Size,
	}
	switch {
	case ev.Err != nil:
		it.JPG, it.Size = "", 0
		it.Status = domain.StatusFailed
		it.ErrorCode = domain.ErrCodePreviewFailed
		it.ErrorMsg = ev.Err.Error()
	case a.Reused:
		it.Status = domain.StatusSkipped
	default:
		it.Status = domain.StatusProcessed
	}
	return it
}

// Extract 读取 mapping.json 中每个 JPG 的评分，整表写入 ratings.json。
//
// 每个映射的 JPG 都会产生一条记录，没有评分的记为 0。
// 任何读取失败都是致命的：立即返回，不写 ratings.json。
func Extract(ctx context.Context, eff config.EffectiveConfig, deps Deps) (domain.PhaseReport, error) {
	p := begin(domain.PhaseExtract, eff, deps)

	m, err := p.st.LoadMapping()
	if err != nil {
		return p.finish(err)
	}
	if deps.Reader == nil {
		return p.finish(errors.New("评分读取器为空"))
	}

	started := time.Now()
	entries := m.Entries()
	ratings, _ := store.NewRatings(nil)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return p.finish(err)
		}
		one := time.Now()
		path := p.ws.Abs(e.JPG)
		md, err := deps.Reader.ReadMetadata(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return p.finish(ctx.Err())
			}
			derr := &domain.Error{Code: domain.ErrCodeMetadataRead, Path: path, Err: err}
			p.item(domain.ItemResult{JPG: e.JPG, Raw: e.Raw, Status: domain.StatusFailed, ErrorCode: derr.Code, ErrorMsg: err.Error()}, len(entries), time.Since(one))
			return p.finish(derr)
		}

		rating := 0
		if md.Rating != nil {
			rating = *md.Rating
		}
		if err := ratings.Set(e.JPG, rating); err != nil {
			return p.finish(&domain.Error{Code: domain.ErrCodeMetadataRead, Path: path, Err: err})
		}
		p.item(domain.ItemResult{JPG: e.JPG, Raw: e.Raw, Rating: metadata.RatingPtr(rating), Status: domain.StatusProcessed}, len(entries), time.Since(one))
	}
	p.obs.OnPhaseDone("read", map[string]any{"jpgs": len(entries)}, time.Since(started))

	started = time.Now()
	if err := p.st.SaveRatings(ratings); err != nil {
		return p.finish(err)
	}
	p.obs.OnPhaseDone("save", map[string]any{"entries": ratings.Len(), "path": p.ws.RatingPath()}, time.Since(started))
	return p.finish(nil)
}

// Apply 遍历 ratings.json 的 key（而不是 mapping.json 的），经 mapping 找到 RAW 并原地写入评分。
//
// 没有出现在 ratings.json 中的 JPG 永远不会被写。
// 写入前先校验 ratings ⊆ mapping；任何写入失败都是致命的。
// eff.DryRun 时只报告计划写入，不调用 Writer。
func Apply(ctx context.Context, eff config.EffectiveConfig, deps Deps) (domain.PhaseReport, error) {
	p := begin(domain.PhaseApply, eff, deps)

	m, err := p.st.LoadMapping()
	if err != nil {
		return p.finish(err)
	}
	r, err := p.st.LoadRatings()
	if err != nil {
		return p.finish(err)
	}
	if err := r.CheckSubsetOf(m); err != nil {
		return p.finish(&domain.Error{Code: domain.ErrCodeStateInvalid, Path: p.ws.RatingPath(), Err: err})
	}
	if !eff.DryRun && deps.Writer == nil {
		return p.finish(errors.New("评分写入器为空"))
	}

	started := time.Now()
	entries := r.Entries()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return p.finish(err)
		}
		one := time.Now()
		raw, _ := m.Lookup(e.JPG)
		it := domain.ItemResult{Raw: raw, JPG: e.JPG, Rating: metadata.RatingPtr(e.Rating)}

		if eff.DryRun {
			it.Status = domain.StatusPlanned
			p.item(it, len(entries), time.Since(one))
			continue
		}
		if err := deps.Writer.WriteRating(ctx, raw, e.Rating); err != nil {
			if ctx.Err() != nil {
				return p.finish(ctx.Err())
			}
			derr := &domain.Error{Code: domain.ErrCodeMetadataWrite, Path: raw, Err: err}
			it.Status, it.ErrorCode, it.ErrorMsg = domain.StatusFailed, derr.Code, err.Error()
			p.item(it, len(entries), time.Since(one))
			return p.finish(derr)
		}
		it.Status = domain.StatusProcessed
		p.item(it, len(entries), time.Since(one))
	}
	p.obs.OnPhaseDone("write", map[string]any{"ratings": len(entries), "dry_run": eff.DryRun}, time.Since(started))
	return p.finish(nil)
}
