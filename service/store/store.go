package store

import (
	"context"

	"PPGateway/data/database/mgo/mongoutil"
	"PPGateway/global/config"
	"PPGateway/logger"
	"PPGateway/service/chat"
	"PPGateway/service/mgo"
	"PPGateway/tools/errs"
	"PPGateway/tools/safe"

	"github.com/redis/go-redis/v9"
)

// Open 按 store.driver 构造 MessageLookup；rdb 非空时套一层群列表缓存。
// driver=none 返回 nil lookup，网关只加入个人房间。
func Open(ctx context.Context, c config.StoreConfig, rdb redis.UniversalClient) (chat.MessageLookup, func(), error) {
	var (
		lookup  chat.MessageLookup
		closeFn = func() {}
	)
	switch c.Driver {
	case config.StoreDriverNone, "":
		logger.Warn("[Store] no persistence configured, group rooms disabled")
		return nil, closeFn, nil
	case config.StoreDriverPostgres:
		pg, err := NewPostgresStore(ctx, c.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		lookup, closeFn = pg, pg.Close
	case config.StoreDriverMongo:
		mgr := mgo.NewMongoManager(&mongoutil.Config{Uri: c.MongoURI, Database: c.MongoDB, AppName: "im-gateway"})
		mctx, cancel := context.WithCancel(context.Background())
		mgr.StartAsync(mctx)
		safe.Go("mongo-indexes", func() {
			select {
			case <-mgr.Ready():
				if db, ok := mgr.TryGetDB(); ok {
					if err := EnsureIndexes(mctx, db); err != nil {
						logger.Warn("[Store] ensure indexes failed: " + err.Error())
					}
				}
			case <-mctx.Done():
			}
		})
		lookup = NewMongoStore(mgr)
		closeFn = func() {
			cancel()
			mgr.Wait()
		}
	default:
		return nil, nil, errs.ErrArgs.WrapMsg("unknown store driver", "driver", c.Driver)
	}

	if rdb != nil {
		lookup = NewCachedLookup(lookup, rdb, c.CacheTTL)
	}
	logger.Infof("[Store] driver=%s cached=%v", c.Driver, rdb != nil)
	return lookup, closeFn, nil
}
