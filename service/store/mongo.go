package store

import (
	"context"
	"encoding/json"
	"errors"

	"PPGateway/data/database"
	"PPGateway/logger"
	"PPGateway/module/chat/model"
	"PPGateway/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MessageCollection 消息服务写入的消息集合，字段名与 JSON 一致（驼峰）
const MessageCollection = "messages"

// DBSource 提供当前可用的库；mgo.MongoManager 实现它
type DBSource interface {
	GetDB() (*mongo.Database, error)
}

type MongoStore struct {
	src DBSource
}

func NewMongoStore(src DBSource) *MongoStore {
	return &MongoStore{src: src}
}

func (s *MongoStore) GetUserGroups(ctx context.Context, userID string) ([]string, error) {
	db, err := s.src.GetDB()
	if err != nil {
		return nil, err
	}
	filter := bson.M{"user_id": userID, "status": model.GroupMemberStatusNormal}
	opts := options.Find().SetProjection(bson.M{"group_id": 1, "_id": 0})
	cur, err := database.Collection(db, model.GroupMember{}).Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find group members", "user", userID)
	}
	var members []model.GroupMember
	if err := cur.All(ctx, &members); err != nil {
		return nil, errs.WrapMsg(err, "decode group members", "user", userID)
	}
	groups := make([]string, 0, len(members))
	for _, m := range members {
		groups = append(groups, m.GroupID)
	}
	return groups, nil
}

func (s *MongoStore) FindMessageByID(ctx context.Context, messageID string) (*model.MessageRecord, error) {
	db, err := s.src.GetDB()
	if err != nil {
		return nil, err
	}
	var doc bson.M
	err = db.Collection(MessageCollection).FindOne(ctx, bson.M{"_id": messageKey(messageID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, errs.WrapMsg(err, "find message", "id", messageID)
	}
	return recordFromDoc(doc)
}

// messageKey 兼容 ObjectID 与字符串主键
func messageKey(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

// recordFromDoc 经 JSON 转一次，未识别字段落入 Extra
func recordFromDoc(doc bson.M) (*model.MessageRecord, error) {
	if id, ok := doc["_id"]; ok {
		if oid, isOID := id.(primitive.ObjectID); isOID {
			doc["id"] = oid.Hex()
		} else {
			doc["id"] = id
		}
		delete(doc, "_id")
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errs.WrapMsg(err, "encode message doc")
	}
	var m model.MessageRecord
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errs.ErrInvalidPayload.WrapMsg("decode message doc", "err", err.Error())
	}
	return &m, nil
}

// EnsureIndexes 只创建不存在的索引
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	gm := model.GroupMember{}
	collections := map[string][]mongo.IndexModel{
		gm.GetTableName(): {
			{
				Keys:    bson.D{{Key: "group_id", Value: 1}, {Key: "user_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_group_user"),
			},
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}},
				Options: options.Index().SetName("ix_user_status"),
			},
		},
	}

	for collName, indexes := range collections {
		coll := db.Collection(collName)
		existing, err := coll.Indexes().ListSpecifications(ctx)
		if err != nil {
			return errs.WrapMsg(err, "list indexes", "collection", collName)
		}
		names := make(map[string]struct{}, len(existing))
		for _, spec := range existing {
			names[spec.Name] = struct{}{}
		}
		for _, idx := range indexes {
			if _, ok := names[*idx.Options.Name]; ok {
				continue
			}
			if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
				return errs.WrapMsg(err, "create index", "collection", collName, "index", *idx.Options.Name)
			}
			logger.Info("[Store] index created", zap.String("collection", collName), zap.String("index", *idx.Options.Name))
		}
	}
	return nil
}
