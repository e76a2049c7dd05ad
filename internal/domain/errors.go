package domain

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ErrCodeMissingState  = "missing_state_file"
	ErrCodeStateInvalid  = "state_invalid"
	ErrCodePreviewFailed = "preview_extraction_failed"
	ErrCodeMetadataRead  = "metadata_read_failed"
	ErrCodeMetadataWrite = "metadata_write_failed"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeInterrupted   = "interrupted"
	ErrCodeToolMissing   = "exiftool_not_found"
)

// Error 是流水线阶段的结构化错误（带 error_code 与出问题的路径）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code)
	if e.Path != "" {
		fmt.Fprintf(&b, "：%q", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, "：%v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 链中提取 error_code；无法识别时返回空串。
func Code(err error) string {
	var pf *PreviewFailuresError
	if errors.As(err, &pf) {
		return ErrCodePreviewFailed
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// PreviewFailuresError 汇总 prepare 阶段所有提取失败的 RAW。
// 只在 mapping 已经落盘后返回，成功的部分不会丢失。
type PreviewFailuresError struct {
	Paths []string
	Errs  []error // 与 Paths 一一对应，可能为 nil
}

func (e *PreviewFailuresError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s：%d 个 RAW 预览提取失败", ErrCodePreviewFailed, len(e.Paths))
	for i, p := range e.Paths {
		fmt.Fprintf(&b, "\n  %s", p)
		if i < len(e.Errs) && e.Errs[i] != nil {
			fmt.Fprintf(&b, "：%v", e.Errs[i])
		}
	}
	return b.String()
}
