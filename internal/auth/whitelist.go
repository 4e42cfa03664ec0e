package auth

import "strings"

// ParseWhitelist 解析 "id:credential" 列表，条目之间可用逗号、分号或换行分隔。
// ID 与凭据以第一个冒号分隔，两侧空白会被裁剪。缺少字段、字段为空或 ID 为通配符
// 的条目会被跳过，第二个返回值为被跳过的条目数。
func ParseWhitelist(raw string) ([]Entry, int) {
	chunks := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})

	entries := make([]Entry, 0, len(chunks))
	skipped := 0
	for _, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		parts := strings.SplitN(chunk, ":", 2)
		if len(parts) < 2 {
			skipped++
			continue
		}
		entry := Entry{
			CallerID:   strings.TrimSpace(parts[0]),
			Credential: strings.TrimSpace(parts[1]),
		}
		if !entry.valid() {
			skipped++
			continue
		}
		entries = append(entries, entry)
	}
	return entries, skipped
}
