package pe

import (
	"fmt"
	"os"
	"path/filepath"
)

// DumpToFS writes the image buffer to path. The buffer goes to a temporary
// file in the same directory first and is renamed into place, so a failed run
// never leaves a partially-written file visible at path.
func (img *Image) DumpToFS(path string) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".vmprebuild-*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时转储文件失败: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(img.buf); err != nil {
		cleanup()
		return fmt.Errorf("写入转储文件 %s 失败: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("同步转储文件 %s 失败: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("关闭转储文件 %s 失败: %w", path, err)
	}

	if err := os.Chmod(tmpName, 0666); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("设置转储文件权限失败: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("重命名转储文件到 %s 失败: %w", path, err)
	}

	return nil
}
