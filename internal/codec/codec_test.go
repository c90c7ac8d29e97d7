package codec

import (
	"bytes"
	"testing"
	"time"
)

func sampleRow() map[string]any {
	return map[string]any{
		"id":         int64(42),
		"customer":   "Иванов",
		"amount":     12.5,
		"qty":        int64(3),
		"note":       nil,
		"blob":       []byte{0, 1, 2, 255},
		"created_at": time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func TestEncodeDecode(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		data, err := Encode(sampleRow(), compressed)
		if err != nil {
			t.Fatalf("Encode(compressed=%v): %v", compressed, err)
		}
		row, err := Decode(data, compressed)
		if err != nil {
			t.Fatalf("Decode(compressed=%v): %v", compressed, err)
		}

		if row["id"] != int64(42) {
			t.Errorf("id = %v (%T), ожидалось int64(42)", row["id"], row["id"])
		}
		if row["qty"] != int64(3) {
			t.Errorf("qty = %v (%T), ожидалось int64(3)", row["qty"], row["qty"])
		}
		if row["amount"] != 12.5 {
			t.Errorf("amount = %v", row["amount"])
		}
		if row["customer"] != "Иванов" {
			t.Errorf("customer = %v", row["customer"])
		}
		if v, ok := row["note"]; !ok || v != nil {
			t.Errorf("note = %v, %v; ожидался nil", v, ok)
		}
		if b, _ := row["blob"].([]byte); !bytes.Equal(b, []byte{0, 1, 2, 255}) {
			t.Errorf("blob = %v", row["blob"])
		}
		ts, _ := row["created_at"].(time.Time)
		if !ts.Equal(time.Date(2020, 3, 4, 5, 6, 7, 0, time.UTC)) {
			t.Errorf("created_at = %v", row["created_at"])
		}
	}
}

func TestPack_Deterministic(t *testing.T) {
	a, err := Pack(sampleRow())
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	b, err := Pack(sampleRow())
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("одинаковые строки дали разные байты")
	}
}

func TestCompress_Smaller(t *testing.T) {
	data := bytes.Repeat([]byte("архив "), 1000)
	c, err := Compress(data)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if len(c) >= len(data) {
		t.Errorf("сжатие не уменьшило размер: %d >= %d", len(c), len(data))
	}
	d, err := Decompress(c)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(d, data) {
		t.Error("данные после распаковки не совпадают")
	}
}

func TestDecode_Corrupt(t *testing.T) {
	if _, err := Decode([]byte("not zlib"), true); err == nil {
		t.Error("ожидалась ошибка распаковки")
	}
	if _, err := Unpack([]byte{0xc1}); err == nil {
		t.Error("ожидалась ошибка десериализации")
	}
}
