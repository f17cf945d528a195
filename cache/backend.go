package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	ddbv1 "github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	badger4 "github.com/ipfs/go-ds-badger4"
	ddbds "github.com/ipfs/go-ds-dynamodb"
)

// OpenDatastore opens a backend from a one-line description:
//
//	memory
//	badger <db-path>
//	dynamo <table-name>
//
// An empty description means memory.
func OpenDatastore(desc string) (datastore.Datastore, error) {
	args := strings.Fields(desc)
	if len(args) == 0 {
		return dssync.MutexWrap(datastore.NewMapDatastore()), nil
	}

	databaseType := args[0]
	args = args[1:]

	switch databaseType {
	case "memory":
		if len(args) != 0 {
			return nil, fmt.Errorf("memory cache takes no arguments")
		}
		return dssync.MutexWrap(datastore.NewMapDatastore()), nil
	case "dynamo":
		if len(args) != 1 {
			return nil, fmt.Errorf("need to pass a table name for the DynamoDB cache")
		}
		ddbClient := ddbv1.New(session.Must(session.NewSession()))
		return ddbds.New(ddbClient, args[0]), nil
	case "badger":
		if len(args) != 1 {
			return nil, fmt.Errorf("need to pass a path for the Badger cache")
		}
		ds, err := badger4.NewDatastore(args[0], nil)
		if err != nil {
			return nil, err
		}
		return ds, nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", databaseType)
	}
}

// Open opens the backend described by desc and wraps it in a Cache.
func Open(desc string, ttl time.Duration) (*Cache, error) {
	ds, err := OpenDatastore(desc)
	if err != nil {
		return nil, err
	}
	c := New(ds, ttl)
	log.Infof("report cache %q, ttl %s", desc, c.TTL())
	return c, nil
}
