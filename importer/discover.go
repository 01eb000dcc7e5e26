package importer

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/CodMac/go-archcheck/decoder"
	"github.com/CodMac/go-archcheck/model"
)

// source 是发现阶段得到的一个文件; 归档在读取后再展开为多个制品
type source struct {
	path string
	kind model.ArtifactKind
}

// discover 递归查找所有可导入的文件, 按路径排序, 形成固定的制品顺序
func discover(locations []string) ([]source, error) {
	seen := make(map[string]bool)
	var out []source
	add := func(path string) {
		kind := decoder.KindOf(path)
		if kind == "" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, source{path: path, kind: kind})
	}

	for _, loc := range locations {
		info, err := os.Stat(loc)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", loc, err)
		}
		if !info.IsDir() {
			add(filepath.Clean(loc))
			continue
		}
		err = filepath.WalkDir(loc, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			// 忽略隐藏目录
			if d.IsDir() && path != loc && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if !d.IsDir() {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", loc, err)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].path < out[j].path })
	return out, nil
}

// expandArchive 把 jar/zip 展开为 class 制品, 按条目名排序。
// 单个条目读取失败只产生告警。
func expandArchive(path string, data []byte) ([]*decoder.Artifact, []model.ImportWarning, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || decoder.KindOf(f.Name) != model.KindClass {
			continue
		}
		if filepath.Base(f.Name) == "module-info.class" {
			continue
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var (
		artifacts []*decoder.Artifact
		warnings  []model.ImportWarning
	)
	for _, f := range files {
		content, err := readZipFile(f)
		if err != nil {
			warnings = append(warnings, model.ImportWarning{
				Kind:     model.UnresolvableArtifact,
				Artifact: path + "!" + f.Name,
				Message:  err.Error(),
			})
			continue
		}
		artifacts = append(artifacts, &decoder.Artifact{Path: path, Entry: f.Name, Kind: model.KindClass, Data: content})
	}
	return artifacts, warnings, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
