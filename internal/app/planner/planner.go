// Package planner 把 RAW 按枚举顺序贪心地分配到按大小封顶的批次目录，并提取预览。
package planner

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/cullhelper/internal/domain"
	"github.com/John-Robertt/cullhelper/internal/infra/fsx"
	"github.com/John-Robertt/cullhelper/internal/infra/imgx"
	"github.com/John-Robertt/cullhelper/internal/metadata"
	"github.com/John-Robertt/cullhelper/internal/store"
	"github.com/John-Robertt/cullhelper/internal/workspace"
)

// DefaultLimit 是单个批次的默认字节上限（10 GB，十进制）。
const DefaultLimit int64 = 10_000_000_000

// ErrNameConflict 表示两个 RAW 会生成同名预览（例如 A.CR3 与 A.NEF）。
var ErrNameConflict = errors.New("预览文件名冲突")

// Event 是单个 RAW 的处理结果；Err 非 nil 表示失败，此时 Assignment 只有 Raw 有效。
type Event struct {
	Assignment domain.Assignment
	Err        error
	Dur        time.Duration
}

// Failure 记录一次失败的预览提取。
type Failure struct {
	Raw domain.RawFile
	Err error
}

// Result 是一次完整遍历的结果。
type Result struct {
	Assignments []domain.Assignment
	Failures    []Failure
	Mapping     store.Mapping
	// Batches 是遍历结束时的当前批次号（可能是一个尚未使用的新批次）。
	Batches int
}

// Planner 持有批次上限与预览提取器。零值不可用，使用 New。
type Planner struct {
	ws        workspace.Workspace
	limit     int64
	extractor metadata.PreviewExtractor

	// OnEvent 在每个 RAW 处理完后同步调用（可为 nil）。
	OnEvent func(Event)
	// tempName 生成批次目录中的隐藏临时文件名。
	tempName func(base string) string
}

func New(ws workspace.Workspace, limit int64, extractor metadata.PreviewExtractor) (*Planner, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("批次上限必须为正数：%d", limit)
	}
	if extractor == nil {
		return nil, errors.New("预览提取器为空")
	}
	return &Planner{
		ws:        ws,
		limit:     limit,
		extractor: extractor,
		tempName: func(base string) string {
			return "." + base + ".tmp-" + uuid.NewString() + workspace.PreviewExt
		},
	}, nil
}

// Plan 单次前向遍历 files（不回溯、不按大小排序）：
//
//   - 预览已存在于某个批次目录：不重新提取，沿用原批次并只计一次字节数
//   - 提取失败：记入 Failures，不进入 mapping，不计字节数
//   - 提取成功：记入 mapping 并累加字节数；累计值严格大于上限后关闭当前批次
//
// 批次 1 的目录总会被创建；后续批次目录在第一个文件写入时创建。
// ctx 在文件之间检查，取消时返回 ctx.Err()，已提取的预览保留在磁盘上。
func (p *Planner) Plan(ctx context.Context, files iter.Seq[domain.RawFile]) (Result, error) {
	if err := p.ws.Ensure(); err != nil {
		return Result{}, err
	}
	if err := fsx.EnsureDir(p.ws.Fs, p.ws.BatchDir(1)); err != nil {
		return Result{}, err
	}
	existing, err := p.ws.IndexPreviews()
	if err != nil {
		return Result{}, err
	}

	var (
		res     Result
		batchNo = 1
		acc     int64
		claimed = make(map[string]string) // 预览文件名 -> 本次遍历中占用它的 RAW
	)
	mapping, _ := store.NewMapping(nil)

	for raw := range files {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		started := time.Now()
		name := raw.Base + workspace.PreviewExt

		if owner, ok := claimed[name]; ok {
			err := fmt.Errorf("%w：%q 与 %q 都会生成 %s", ErrNameConflict, raw.AbsPath, owner, name)
			res.Failures = append(res.Failures, Failure{Raw: raw, Err: err})
			p.emit(Event{Assignment: domain.Assignment{Raw: raw}, Err: err, Dur: time.Since(started)})
			continue
		}

		var a domain.Assignment
		if ex, ok := existing[name]; ok {
			// 重放上一次运行的分配：前进到它所在的批次并计入字节数；
			// 落在更早批次里的预览不影响当前计数。
			if ex.Batch > batchNo {
				batchNo, acc = ex.Batch, 0
			}
			a = domain.Assignment{Raw: raw, Batch: ex.Batch, JPG: ex.Rel, Size: ex.Size, Reused: true}
		} else {
			a, err = p.extract(ctx, raw, batchNo)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return Result{}, ctxErr
				}
				res.Failures = append(res.Failures, Failure{Raw: raw, Err: err})
				p.emit(Event{Assignment: domain.Assignment{Raw: raw, Batch: batchNo}, Err: err, Dur: time.Since(started)})
				continue
			}
		}

		if err := mapping.Add(a.JPG, raw.AbsPath); err != nil {
			return Result{}, err
		}
		claimed[name] = raw.AbsPath
		res.Assignments = append(res.Assignments, a)

		if a.Batch == batchNo {
			acc += a.Size
			if acc > p.limit {
				batchNo, acc = batchNo+1, 0
			}
		}
		p.emit(Event{Assignment: a, Dur: time.Since(started)})
	}

	res.Mapping = mapping
	res.Batches = batchNo
	return res, nil
}

// extract 先写到批次目录下的隐藏临时文件，校验是 JPEG 后再 rename 到最终名字；
// 任何失败都会删除临时文件，保证存在性检查不会看到半成品。
func (p *Planner) extract(ctx context.Context, raw domain.RawFile, batch int) (domain.Assignment, error) {
	dir := p.ws.BatchDir(batch)
	if err := fsx.EnsureDir(p.ws.Fs, dir); err != nil {
		return domain.Assignment{}, err
	}

	tmp := filepath.Join(dir, p.tempName(raw.Base))
	dst := filepath.Join(dir, raw.Base+workspace.PreviewExt)
	defer func() { _ = p.ws.Fs.Remove(tmp) }()

	if err := p.extractor.ExtractPreview(ctx, raw.AbsPath, tmp); err != nil {
		return domain.Assignment{}, err
	}
	pv, err := imgx.InspectJPEG(p.ws.Fs, tmp)
	if err != nil {
		return domain.Assignment{}, err
	}
	if err := fsx.Rename(p.ws.Fs, tmp, dst); err != nil {
		return domain.Assignment{}, err
	}

	return domain.Assignment{
		Raw:   raw,
		Batch: batch,
		JPG:   workspace.PreviewRel(batch, raw.Base),
		Size:  pv.Size,
	}, nil
}

func (p *Planner) emit(ev Event) {
	if p.OnEvent != nil {
		p.OnEvent(ev)
	}
}
