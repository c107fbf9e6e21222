package awscompat

import (
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/schema"
	"pretenderdb/domain/streams"
)

// ToStreamsRecord converts a captured record into the dynamodbstreams
// SDK record shape, for consumers written against the streams client.
func ToStreamsRecord(def schema.TableDefinition, rec streams.Record) (streamtypes.Record, error) {
	keys, err := ToStreamsImage(rec.Keys)
	if err != nil {
		return streamtypes.Record{}, err
	}
	data := &streamtypes.StreamRecord{
		Keys:                        keys,
		SequenceNumber:              aws.String(strconv.FormatInt(rec.SequenceNumber, 10)),
		StreamViewType:              streamtypes.StreamViewType(def.Stream.ViewType),
		ApproximateCreationDateTime: aws.Time(rec.CreatedAt),
	}
	if rec.OldImage != nil {
		if data.OldImage, err = ToStreamsImage(rec.OldImage); err != nil {
			return streamtypes.Record{}, err
		}
	}
	if rec.NewImage != nil {
		if data.NewImage, err = ToStreamsImage(rec.NewImage); err != nil {
			return streamtypes.Record{}, err
		}
	}

	out := streamtypes.Record{
		EventName:   streamtypes.OperationType(rec.EventName),
		EventSource: aws.String("aws:dynamodb"),
		Dynamodb:    data,
	}
	if rec.UserIdentity != nil {
		out.UserIdentity = &streamtypes.Identity{
			Type:        aws.String(rec.UserIdentity.Type),
			PrincipalId: aws.String(rec.UserIdentity.PrincipalID),
		}
	}
	return out, nil
}

// ToStreamsImage converts an item into the streams type family, which
// mirrors the dynamodb family member for member.
func ToStreamsImage(item attr.Item) (map[string]streamtypes.AttributeValue, error) {
	converted, err := ToSDKItem(item)
	if err != nil {
		return nil, err
	}
	out := make(map[string]streamtypes.AttributeValue, len(converted))
	for name, av := range converted {
		retagged, err := retag(av)
		if err != nil {
			return nil, err
		}
		out[name] = retagged
	}
	return out, nil
}

// retag maps a dynamodb attribute value onto the structurally identical
// dynamodbstreams one.
func retag(av dynamodbtypes.AttributeValue) (streamtypes.AttributeValue, error) {
	switch v := av.(type) {
	case *dynamodbtypes.AttributeValueMemberS:
		return &streamtypes.AttributeValueMemberS{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberN:
		return &streamtypes.AttributeValueMemberN{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberB:
		return &streamtypes.AttributeValueMemberB{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberBOOL:
		return &streamtypes.AttributeValueMemberBOOL{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberNULL:
		return &streamtypes.AttributeValueMemberNULL{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberSS:
		return &streamtypes.AttributeValueMemberSS{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberNS:
		return &streamtypes.AttributeValueMemberNS{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberBS:
		return &streamtypes.AttributeValueMemberBS{Value: v.Value}, nil
	case *dynamodbtypes.AttributeValueMemberL:
		elems := make([]streamtypes.AttributeValue, 0, len(v.Value))
		for _, el := range v.Value {
			retagged, err := retag(el)
			if err != nil {
				return nil, err
			}
			elems = append(elems, retagged)
		}
		return &streamtypes.AttributeValueMemberL{Value: elems}, nil
	case *dynamodbtypes.AttributeValueMemberM:
		entries := make(map[string]streamtypes.AttributeValue, len(v.Value))
		for name, el := range v.Value {
			retagged, err := retag(el)
			if err != nil {
				return nil, err
			}
			entries[name] = retagged
		}
		return &streamtypes.AttributeValueMemberM{Value: entries}, nil
	default:
		return nil, fmt.Errorf("unsupported attribute value type %T", av)
	}
}
