package domain

// RawFile 描述一次扫描得到的 RAW 文件（只做 stat，不读内容）。
//
// 不变量：
// - AbsPath 必须是 clean + absolute
// - Name 是不含目录的文件名，Base 是去掉扩展名后的部分
type RawFile struct {
	AbsPath string
	Name    string
	Base    string // 不含扩展名
	Ext     string // 原样保留大小写，例如 ".CR3"
	Size    int64
}
