// Package model は学習済みモデルのバイナリ永続化を提供します。
// 形式はencoding/gobで、エクスポートの `.h2o` ファイルに使われます。
package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/cockroachdb/errors"

	mlerrors "github.com/mannetroll/analysis/pkg/errors"
)

// SaveModel はモデルをファイルに保存する
//
// パラメータ:
//   - model: 保存するモデル（gobでエンコード可能な構造体のポインタ）
//   - filename: 保存先のファイルパス
//   - force: trueの場合、既存ファイルを上書きする
//
// 戻り値:
//   - error: 保存に失敗した場合のエラー。forceがfalseでファイルが既に
//     存在する場合は os.ErrExist をラップしたエラー
//
// 使用例:
//
//	err := model.SaveModel(gbmModel, "/tmp/GBM_80_16_20240101_120000.h2o", true)
func SaveModel(model interface{}, filename string, force bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	file, err := os.OpenFile(filename, flags, 0o644)
	if err != nil {
		return mlerrors.NewModelError("SaveModel", "failed to create file", errors.WithStack(err))
	}

	if err := SaveModelToWriter(model, file); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return mlerrors.NewModelError("SaveModel", "failed to close file", errors.WithStack(err))
	}
	return nil
}

// LoadModel はファイルからモデルを読み込む
//
// パラメータ:
//   - model: 読み込み先のモデル（ポインタ）
//   - filename: 読み込み元のファイルパス
//
// 戻り値:
//   - error: 読み込みに失敗した場合のエラー
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return mlerrors.NewModelError("LoadModel", "failed to open file", errors.WithStack(err))
	}
	defer file.Close()

	return LoadModelFromReader(model, file)
}

// SaveModelToWriter はモデルをio.Writerに保存する
func SaveModelToWriter(model interface{}, w io.Writer) error {
	encoder := gob.NewEncoder(w)
	if err := encoder.Encode(model); err != nil {
		return mlerrors.NewModelError("SaveModel", "failed to encode model", err)
	}
	return nil
}

// LoadModelFromReader はio.Readerからモデルを読み込む
func LoadModelFromReader(model interface{}, r io.Reader) error {
	decoder := gob.NewDecoder(r)
	if err := decoder.Decode(model); err != nil {
		return mlerrors.NewModelError("LoadModel", "failed to decode model", err)
	}
	return nil
}
