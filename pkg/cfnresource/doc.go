// Package cfnresource serves the event-stream resource set as a
// CloudFormation custom resource.
//
// A template declares it as
//
//	EventStream:
//	  Type: Custom::PinpointEventStream
//	  Properties:
//	    ServiceToken: !GetAtt EventStreamFunction.Arn
//	    ApplicationId: !Ref PinpointApp
//
// and reads !GetAtt EventStream.StreamArn and !GetAtt
// EventStream.PinpointRoleArn after creation.
package cfnresource
