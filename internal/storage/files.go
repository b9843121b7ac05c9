package storage

import (
	"context"
	"fmt"

	"chatify/internal/models"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

type DBMediaObject struct {
	ID        string `msgpack:"id"`
	MimeType  string `msgpack:"mimeType"`
	Size      int64  `msgpack:"size"`
	UserID    string `msgpack:"userId"`
	CreatedAt int64  `msgpack:"createdAt"`
}

func (f *DBMediaObject) Key() []byte {
	return []byte(f.ID)
}

func (f *DBMediaObject) MarshalBinary() (data []byte, err error) {
	type alias DBMediaObject
	return msgpack.Marshal((*alias)(f))
}

func (f *DBMediaObject) UnmarshalBinary(data []byte) error {
	type alias DBMediaObject
	return msgpack.Unmarshal(data, (*alias)(f))
}

// SaveMediaObject records metadata of an uploaded object. Re-uploading the
// same content keeps the first record.
func (s *BboltStorage) SaveMediaObject(ctx context.Context, obj models.MediaObject) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if b.Get([]byte(obj.ID)) != nil {
			return nil
		}
		err := put(b, &DBMediaObject{
			ID:        obj.ID,
			MimeType:  obj.MimeType,
			Size:      obj.Size,
			UserID:    obj.UserID,
			CreatedAt: toMillis(obj.CreatedAt),
		})
		if err != nil {
			return fmt.Errorf("failed to put media object: %w", err)
		}
		return nil
	})
}

func (s *BboltStorage) FindMediaObject(ctx context.Context, id string) (models.MediaObject, error) {
	if err := ctx.Err(); err != nil {
		return models.MediaObject{}, err
	}
	var obj models.MediaObject
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("media object %s: %w", id, models.ErrNotFound)
		}
		var dbObj DBMediaObject
		if err := dbObj.UnmarshalBinary(data); err != nil {
			return fmt.Errorf("failed to unmarshal media object: %w", err)
		}
		obj = models.MediaObject{
			ID:        dbObj.ID,
			MimeType:  dbObj.MimeType,
			Size:      dbObj.Size,
			UserID:    dbObj.UserID,
			CreatedAt: fromMillis(dbObj.CreatedAt),
		}
		return nil
	})
	return obj, err
}
