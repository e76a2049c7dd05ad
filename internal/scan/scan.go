package scan

import (
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/cullhelper/internal/domain"
)

// ScanRaws 列出 root 目录（不递归）下扩展名属于 exts 的 RAW 文件。
//
// 规则：
// - 扩展名比较不区分大小写（exts 形如 ".CR3"）
// - 只做 stat，不读文件内容
// - 输出按文件名字典序，这个顺序决定批次分配，必须稳定
//
// 工作目录 <root>/culling-helper 本身是目录，天然不会被收录。
func ScanRaws(fsys afero.Fs, root string, exts []string) ([]domain.RawFile, error) {
	root = filepath.Clean(root)
	allowed := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		allowed[e] = struct{}{}
	}

	// afero.ReadDir 已按文件名排序。
	entries, err := afero.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}

	files := make([]domain.RawFile, 0, len(entries))
	for _, fi := range entries {
		if !fi.Mode().IsRegular() {
			continue
		}
		name := fi.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		if _, ok := allowed[strings.ToLower(ext)]; !ok {
			continue
		}
		files = append(files, domain.RawFile{
			AbsPath: filepath.Join(root, name),
			Name:    name,
			Base:    strings.TrimSuffix(name, ext),
			Ext:     ext,
			Size:    fi.Size(),
		})
	}
	return files, nil
}
