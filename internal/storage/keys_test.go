package storage

import (
	"errors"
	"testing"
)

func TestSaveAndGetDerivedKey(t *testing.T) {
	s, cleanup := testStorage(t)
	defer cleanup()

	rec := &DerivedKeyRecord{
		SourceAddress: "7ziZFc6zh2U1jxpYxzrA2HL77UZo8TLt9X65pNtW6EPp",
		EVMAddress:    "0x2222222222222222222222222222222222222222",
		EncIV:         "aabb",
		EncAuthTag:    "ccdd",
		EncData:       "eeff",
	}
	if err := s.SaveDerivedKey(rec); err != nil {
		t.Fatalf("SaveDerivedKey failed: %v", err)
	}

	got, err := s.GetDerivedKey("7ziZFc6zh2U1jxpYxzrA2HL77UZo8TLt9X65pNtW6EPp")
	if err != nil {
		t.Fatalf("GetDerivedKey failed: %v", err)
	}
	if got.EVMAddress != rec.EVMAddress {
		t.Errorf("wrong evm address: %s", got.EVMAddress)
	}
	if got.EncData != "eeff" {
		t.Errorf("ciphertext not persisted: %s", got.EncData)
	}
	if got.GasSeeded {
		t.Error("new key should not be gas seeded")
	}
}

func TestGetDerivedKeyCaseInsensitive(t *testing.T) {
	s, cleanup := testStorage(t)
	defer cleanup()

	rec := &DerivedKeyRecord{
		SourceAddress: "MiXeDCaseAddr",
		EVMAddress:    "0x3333333333333333333333333333333333333333",
		EncIV:         "00",
		EncAuthTag:    "00",
		EncData:       "00",
	}
	if err := s.SaveDerivedKey(rec); err != nil {
		t.Fatalf("SaveDerivedKey failed: %v", err)
	}

	if _, err := s.GetDerivedKey("mixedcaseaddr"); err != nil {
		t.Errorf("lowercase lookup failed: %v", err)
	}
	if _, err := s.GetDerivedKey("MIXEDCASEADDR"); err != nil {
		t.Errorf("uppercase lookup failed: %v", err)
	}
}

func TestSaveDerivedKeyUpsert(t *testing.T) {
	s, cleanup := testStorage(t)
	defer cleanup()

	rec := &DerivedKeyRecord{
		SourceAddress: "addr",
		EVMAddress:    "0x4444444444444444444444444444444444444444",
		EncIV:         "01",
		EncAuthTag:    "02",
		EncData:       "03",
	}
	if err := s.SaveDerivedKey(rec); err != nil {
		t.Fatalf("SaveDerivedKey failed: %v", err)
	}

	rec.EncData = "99"
	if err := s.SaveDerivedKey(rec); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := s.GetDerivedKey("addr")
	if err != nil {
		t.Fatalf("GetDerivedKey failed: %v", err)
	}
	if got.EncData != "99" {
		t.Errorf("upsert did not update ciphertext: %s", got.EncData)
	}
}

func TestMarkGasSeeded(t *testing.T) {
	s, cleanup := testStorage(t)
	defer cleanup()

	if err := s.MarkGasSeeded("unknown", "0x1"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}

	rec := &DerivedKeyRecord{
		SourceAddress: "seeded",
		EVMAddress:    "0x5555555555555555555555555555555555555555",
		EncIV:         "01",
		EncAuthTag:    "02",
		EncData:       "03",
	}
	if err := s.SaveDerivedKey(rec); err != nil {
		t.Fatalf("SaveDerivedKey failed: %v", err)
	}
	if err := s.MarkGasSeeded("seeded", "0xseed"); err != nil {
		t.Fatalf("MarkGasSeeded failed: %v", err)
	}

	got, err := s.GetDerivedKey("seeded")
	if err != nil {
		t.Fatalf("GetDerivedKey failed: %v", err)
	}
	if !got.GasSeeded || got.GasSeedTxHash != "0xseed" {
		t.Errorf("gas seeding not recorded: %+v", got)
	}
}
