package pgjob

import (
	"context"

	"github.com/pkg/errors"
)

func Dequeue(ctx context.Context, e Execer, id int64) error {
	return BulkDequeue(ctx, e, []int64{id})
}

func BulkDequeue(ctx context.Context, e Execer, ids []int64) error {
	query := "DELETE FROM pgjob_job WHERE id=ANY($1);"
	_, err := e.Exec(ctx, query, ids)
	if err != nil {
		return errors.WithMessage(err, "exec delete pgjob")
	}
	return nil
}
