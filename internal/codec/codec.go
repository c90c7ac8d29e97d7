// Пакет codec — сериализация архивируемых строк.
//
// Строка ("колонка → значение") кодируется в MessagePack, при сжатии
// результат дополнительно упаковывается zlib. Числа после декодирования
// приводятся к int64/float64, чтобы значения из архива совпадали с тем,
// что возвращают драйверы баз данных.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/vmihailenco/msgpack/v5"
)

// Pack сериализует строку в MessagePack. Ключи сортируются,
// поэтому одинаковые строки дают одинаковые байты.
func Pack(row map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(row); err != nil {
		return nil, fmt.Errorf("ошибка сериализации строки: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack восстанавливает строку из MessagePack.
func Unpack(data []byte) (map[string]any, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("ошибка десериализации строки: %w", err)
	}
	for k, v := range row {
		row[k] = normalize(v)
	}
	return row, nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	}
	return v
}

// Compress упаковывает данные zlib.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("ошибка сжатия: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("ошибка сжатия: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress распаковывает данные zlib.
func Decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки: %w", err)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("ошибка распаковки: %w", err)
	}
	return out, nil
}

// Encode сериализует строку и при compressed сжимает результат.
func Encode(row map[string]any, compressed bool) ([]byte, error) {
	data, err := Pack(row)
	if err != nil {
		return nil, err
	}
	if !compressed {
		return data, nil
	}
	return Compress(data)
}

// Decode — обратная операция к Encode.
func Decode(data []byte, compressed bool) (map[string]any, error) {
	if compressed {
		raw, err := Decompress(data)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return Unpack(data)
}
